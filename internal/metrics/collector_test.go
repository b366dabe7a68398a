package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCollector() *Collector {
	return NewCollectorWithRegisterer("handoff_test", prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := newTestCollector()

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.sessionsCreated)
	assert.NotNil(t, collector.switchesTotal)
	assert.NotNil(t, collector.wsConnections)
	assert.NotNil(t, collector.webhookEvents)
	assert.NotNil(t, collector.queueDepth)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := newTestCollector()

	collector.RecordHTTPRequest("POST", "/webhooks/telephony", 200, 10*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordSwitch(t *testing.T) {
	collector := newTestCollector()

	collector.RecordSwitch("AI_TO_HUMAN", "success", 20*time.Millisecond)
	collector.RecordSwitch("AI_TO_HUMAN", "already_in_mode", time.Millisecond)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.switchesTotal.WithLabelValues("AI_TO_HUMAN", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.switchesTotal.WithLabelValues("AI_TO_HUMAN", "already_in_mode")))
}

func TestCollector_GatewayGauges(t *testing.T) {
	collector := newTestCollector()

	collector.ClientConnected()
	collector.ClientConnected()
	collector.ClientDisconnected()

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.wsConnections))

	collector.SetRoomSubscribers("conversation", 3)
	assert.Equal(t, float64(3),
		testutil.ToFloat64(collector.roomSubscribers.WithLabelValues("conversation")))
}

func TestCollector_RecordWebhookEvent(t *testing.T) {
	collector := newTestCollector()

	collector.RecordWebhookEvent("telephony", "call.answered", "processed")
	collector.RecordWebhookEvent("telephony", "call.answered", "duplicate")

	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.webhookEvents.WithLabelValues("telephony", "call.answered", "processed")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.webhookEvents.WithLabelValues("telephony", "call.answered", "duplicate")))
}

func TestCollector_QueueMetrics(t *testing.T) {
	collector := newTestCollector()

	collector.SetQueueDepth(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(collector.queueDepth))

	collector.ObserveWaitSeconds(42)
	assert.Equal(t, 1, testutil.CollectAndCount(collector.waitSeconds))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(99))
}
