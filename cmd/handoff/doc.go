// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
Package main 提供 Handoff 服务端程序入口。

# 概述

cmd/handoff 是 AI 客服与人工坐席切换协调服务的可执行入口，提供 HTTP API、
WebSocket 网关、Webhook 接入、账本迁移、健康检查和版本查询等子命令。
程序支持 YAML 配置文件加载、结构化日志（zap）、Prometheus 指标采集
以及 OpenTelemetry 链路追踪。

# 核心类型

  - Server           — 主服务器，装配存储/编排/网关/接入并管理双端口监听
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、migrate（账本迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、MetricsMiddleware、CORS、RateLimiter（基于 IP）
  - 路由：/ws（仪表盘 WebSocket）、/webhooks/{telephony,assistant}、
    /api/v1/sessions*（管理面）、/health(z)、/ready、/version
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭监听器 → 停后台协程 → 释放存储 → 遥测 flush
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
