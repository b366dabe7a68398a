// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
包 webhook 实现话务与助手两路供应商回调的接入适配。

# 职责边界

适配器只做一件事：把供应商各自的载荷翻译成会话存储的三个原语
（create / update / appendTranscript）外加编排器调用，别无其他。
无论内部处理结果如何，handler 都立即 200 确认——供应商对非 2xx
会重试，重复投递必须被容忍。

# 幂等

供应商按 at-least-once 语义投递。适配器以事件 id 为键做 Redis
SETNX 去重，重复投递直接确认并跳过处理；Redis 不可用时放行处理，
可用性优先于去重。

# 生命周期

会话结束一律向账本写入终态记录（状态 ENDED + 最终转写），
不依赖存储层的 TTL 过期作为生命周期信号。
*/
package webhook
