// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
Package orchestrator 实现 AI↔人工 模式切换的编排。

# 概述

Orchestrator 是整个系统中唯一允许修改会话 Mode 的组件。它对切换请求
做前置校验（存在性、当前模式、会话状态），以尽力而为的方式执行方向
相关的副作用（结束助手通话腿、播报过渡提示），更新会话存储，追加审
计记录，并通过实时网关向会话房间广播状态变更。

# 错误策略

校验错误（NOT_FOUND / ALREADY_IN_MODE / NOT_ACTIVE）同步返回给调用方，
绝不自动重试。副作用错误（电话 / 助手 / 账本调用失败）记录日志后吞掉：
模式正确性优先于通知完整性，切换一旦可以完成就必须完成。
*/
package orchestrator
