// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
Package types 提供 Handoff 会话协调核心的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 session、orchestrator、
gateway、webhook 等上层模块提供统一的类型契约。所有跨包共享的结构体、
枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - ConversationSession — 单次客户会话（语音或文本）的全部运行时状态
  - TranscriptEntry     — 不可变的对话记录条目（AI / HUMAN / CUSTOMER）
  - Mode / Status       — 会话模式与生命周期状态枚举
  - SwitchDirection     — AI↔人工 切换方向（AI_TO_HUMAN / HUMAN_TO_AI）
  - SwitchRecord        — 审计账本中的切换记录
  - SwitchResult        — ExecuteSwitch 的同步返回结果
  - QueueEntry          — 面向仪表盘的等待队列投影（不持久化）
  - Error / ErrorCode   — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 关键不变量

  - Status 为 ENDED 后会话不再允许任何变更（终态）
  - transcript 仅追加，插入顺序有意义且必须保留
  - SwitchCount 单调不减，每次成功切换恰好加一
  - Mode 仅由 orchestrator 写入
*/
package types
