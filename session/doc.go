// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
Package session 提供会话状态的临时存储（Redis + TTL）。

# 概述

Store 是整个协调核心唯一的共享可变资源，保存每个活跃会话的
ConversationSession，并回答"这个会话现在处于什么模式"。所有状态变更
必须经由 Create / Update / AppendTranscript 三个操作，任何组件都不得
绕过 Store 修改缓存副本。

# 语义要点

  - Create: 固定 TTL 写入（默认 2 小时），键存在时覆盖；存储不可达为硬错误
  - Get: 缺失是合法结果（过期或从未创建）；读路径故障降级为"缺失"
  - Update: 浅合并局部字段并刷新 TTL；键缺失时无副作用返回缺失
  - AppendTranscript: 追加一条不可变记录；键缺失时静默跳过
  - Delete: 显式删除（仅用于管理清理，正常挂断不删除）

# 并发模型

Redis 的读-改-写本身不是原子的。Store 内部以分片键锁（per-key striped
mutex）串行化同一会话 ID 的全部变更路径，保证并发 Update /
AppendTranscript 不会相互覆盖丢失写入。跨会话之间无任何顺序保证。
*/
package session
