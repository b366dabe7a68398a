// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
Package providers 提供外部协作方的 HTTP 客户端实现。

Handoff 核心只定义协作方接口（orchestrator.Telephony / orchestrator.Assistant），
本目录下的子包给出面向真实供应商 API 的实现：

  - providers/telephony — 电话信令客户端（speak / mute / unmute / hangup）
  - providers/assistant — 自动助手客户端（respond）

根包只承载各客户端共用的小件：出站 HTTP 客户端构造、错误响应体读取
和 URL 拼接。所有客户端使用 Bearer 认证，超时由各自配置段控制。
*/
package providers
