// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、会话、切换、网关与 Webhook 五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：创建/删除计数、转写追加计数，按 channel/speaker 分组。
  - 切换指标：切换总数与耗时，按 direction/result 分组。
  - 网关指标：在线连接 Gauge、房间订阅数 Gauge、事件广播与
    入站命令计数，按 room/event/command 分组。
  - Webhook 指标：事件计数按 provider/event/outcome 分组，
    其中 outcome 区分 processed/duplicate/error。
  - 队列指标：待接入会话深度 Gauge 与等待时长 Histogram。
*/
package metrics
