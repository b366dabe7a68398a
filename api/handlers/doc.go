// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Handoff HTTP API 的请求处理器实现。

# 概述

handlers 包实现了管理面 HTTP 端点的请求处理逻辑，
包括会话查询与删除、切换历史、切换预检查、健康检查
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - SessionHandler   — 会话管理处理器（列表、详情、删除、切换历史、预检查）
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（PingCheck 覆盖数据库、Redis、外部协作方）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 切换预检查：转接前探询会话可否切换及拒绝原因
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
