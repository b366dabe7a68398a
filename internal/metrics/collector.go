// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 会话指标
	sessionsCreated   *prometheus.CounterVec
	sessionsDeleted   prometheus.Counter
	transcriptAppends *prometheus.CounterVec

	// 切换指标
	switchesTotal  *prometheus.CounterVec
	switchDuration *prometheus.HistogramVec

	// 网关指标
	wsConnections   prometheus.Gauge
	roomSubscribers *prometheus.GaugeVec
	eventsBroadcast *prometheus.CounterVec
	commandsTotal   *prometheus.CounterVec

	// Webhook 指标
	webhookEvents *prometheus.CounterVec

	// 队列指标
	queueDepth  prometheus.Gauge
	waitSeconds prometheus.Histogram

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector 创建指标收集器，指标注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegisterer 创建指标收集器并注册到指定 Registerer，
// 测试中传入独立 Registry 以避免重复注册冲突
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 会话指标
	c.sessionsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of conversation sessions created",
		},
		[]string{"channel"},
	)

	c.sessionsDeleted = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_deleted_total",
			Help:      "Total number of conversation sessions administratively deleted",
		},
	)

	c.transcriptAppends = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_appends_total",
			Help:      "Total number of transcript entries appended",
		},
		[]string{"speaker"},
	)

	// 切换指标
	c.switchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_switches_total",
			Help:      "Total number of mode switch attempts",
		},
		[]string{"direction", "result"}, // result: success, not_found, already_in_mode, not_active, internal
	)

	c.switchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mode_switch_duration_seconds",
			Help:      "Mode switch execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"direction"},
	)

	// 网关指标
	c.wsConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of currently connected WebSocket clients",
		},
	)

	c.roomSubscribers = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_subscribers",
			Help:      "Number of subscribers per room kind",
		},
		[]string{"room_kind"}, // conversation, metrics, queue
	)

	c.eventsBroadcast = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Total number of events broadcast to rooms",
		},
		[]string{"event_type"},
	)

	c.commandsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_commands_total",
			Help:      "Total number of inbound gateway commands",
		},
		[]string{"command", "status"}, // status: ok, rejected, error
	)

	// Webhook 指标
	c.webhookEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events received",
		},
		[]string{"provider", "event_type", "outcome"}, // outcome: processed, duplicate, error
	)

	// 队列指标
	c.queueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of conversations currently waiting for a human",
		},
	)

	c.waitSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_wait_seconds",
			Help:      "Observed wait time of queued conversations in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 💬 会话指标记录
// =============================================================================

// RecordSessionCreated 记录会话创建
func (c *Collector) RecordSessionCreated(channel string) {
	c.sessionsCreated.WithLabelValues(channel).Inc()
}

// RecordSessionDeleted 记录会话管理删除
func (c *Collector) RecordSessionDeleted() {
	c.sessionsDeleted.Inc()
}

// RecordTranscriptAppend 记录转写追加
func (c *Collector) RecordTranscriptAppend(speaker string) {
	c.transcriptAppends.WithLabelValues(speaker).Inc()
}

// =============================================================================
// 🔀 切换指标记录
// =============================================================================

// RecordSwitch 记录一次切换尝试
func (c *Collector) RecordSwitch(direction, result string, duration time.Duration) {
	c.switchesTotal.WithLabelValues(direction, result).Inc()
	c.switchDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// =============================================================================
// 📡 网关指标记录
// =============================================================================

// ClientConnected 记录客户端上线
func (c *Collector) ClientConnected() {
	c.wsConnections.Inc()
}

// ClientDisconnected 记录客户端下线
func (c *Collector) ClientDisconnected() {
	c.wsConnections.Dec()
}

// SetRoomSubscribers 设置房间订阅数
func (c *Collector) SetRoomSubscribers(roomKind string, n int) {
	c.roomSubscribers.WithLabelValues(roomKind).Set(float64(n))
}

// RecordEventBroadcast 记录事件广播
func (c *Collector) RecordEventBroadcast(eventType string) {
	c.eventsBroadcast.WithLabelValues(eventType).Inc()
}

// RecordCommand 记录入站命令
func (c *Collector) RecordCommand(command, status string) {
	c.commandsTotal.WithLabelValues(command, status).Inc()
}

// =============================================================================
// 🪝 Webhook 指标记录
// =============================================================================

// RecordWebhookEvent 记录 webhook 事件
func (c *Collector) RecordWebhookEvent(provider, eventType, outcome string) {
	c.webhookEvents.WithLabelValues(provider, eventType, outcome).Inc()
}

// =============================================================================
// 📥 队列指标记录
// =============================================================================

// SetQueueDepth 设置当前排队深度
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// ObserveWaitSeconds 记录排队等待时长
func (c *Collector) ObserveWaitSeconds(seconds float64) {
	c.waitSeconds.Observe(seconds)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
