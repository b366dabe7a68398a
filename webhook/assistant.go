package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/handoff/internal/metrics"
	"github.com/BaSui01/handoff/orchestrator"
	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 🤖 助手供应商回调
// =============================================================================

const providerAssistant = "assistant"

// 助手事件类型
const (
	astEventCallStarted  = "call.started"
	astEventTranscript   = "transcript"
	astEventCallEnded    = "call.ended"
	astEventCallAnalyzed = "call.analyzed"
)

// assistantEvent 助手回调载荷
type assistantEvent struct {
	EventID        string     `json:"event_id"`
	EventType      string     `json:"event_type"`
	ConversationID string     `json:"conversation_id"`
	CallID         string     `json:"call_id,omitempty"`
	Role           string     `json:"role,omitempty"` // assistant | customer
	Text           string     `json:"text,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	Analysis       *struct {
		Summary   string `json:"summary,omitempty"`
		Sentiment string `json:"sentiment,omitempty"`
	} `json:"analysis,omitempty"`
}

// AssistantHandler 助手回调处理器
type AssistantHandler struct {
	store       SessionStore
	broadcaster Broadcaster
	dedup       *Deduper
	collector   *metrics.Collector
	opTimeout   time.Duration
	logger      *zap.Logger
}

// NewAssistantHandler 创建助手回调处理器。collector 可为 nil。
func NewAssistantHandler(store SessionStore, broadcaster Broadcaster, dedup *Deduper, collector *metrics.Collector, opTimeout time.Duration, logger *zap.Logger) *AssistantHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssistantHandler{
		store:       store,
		broadcaster: broadcaster,
		dedup:       dedup,
		collector:   collector,
		opTimeout:   opTimeout,
		logger:      logger.With(zap.String("component", "assistant_webhook")),
	}
}

func (h *AssistantHandler) record(eventType, outcome string) {
	if h.collector != nil {
		h.collector.RecordWebhookEvent(providerAssistant, eventType, outcome)
	}
}

// ServeHTTP 接收助手回调并立即确认
func (h *AssistantHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.record("unknown", outcomeError)
		writeAck(w)
		return
	}

	var ev assistantEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		h.logger.Warn("助手回调载荷解析失败", zap.Error(err))
		h.record("unknown", outcomeError)
		writeAck(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opTimeout)
	defer cancel()

	if !h.dedup.FirstDelivery(ctx, providerAssistant, ev.EventID) {
		h.logger.Debug("助手事件重复投递，跳过",
			zap.String("event_id", ev.EventID),
			zap.String("event_type", ev.EventType))
		h.record(ev.EventType, outcomeDuplicate)
		writeAck(w)
		return
	}

	switch ev.EventType {
	case astEventCallStarted:
		h.handleCallStarted(ctx, &ev)
	case astEventTranscript:
		h.handleTranscript(ctx, &ev)
	case astEventCallEnded:
		// 通话终态由话务侧挂断事件负责，这里只记录
		h.logger.Debug("助手通话结束",
			zap.String("conversation_id", ev.ConversationID),
			zap.String("call_id", ev.CallID))
		h.record(astEventCallEnded, outcomeProcessed)
	case astEventCallAnalyzed:
		h.handleCallAnalyzed(ctx, &ev)
	default:
		h.logger.Debug("忽略未知助手事件", zap.String("event_type", ev.EventType))
		h.record(ev.EventType, outcomeIgnored)
	}

	writeAck(w)
}

// handleCallStarted 关联助手通话腿：assistant_call_id 并入会话元数据
func (h *AssistantHandler) handleCallStarted(ctx context.Context, ev *assistantEvent) {
	_, found, err := h.store.Update(ctx, ev.ConversationID, types.SessionPatch{
		Metadata: map[string]string{orchestrator.MetaAssistantCallID: ev.CallID},
	})
	if err != nil || !found {
		h.logger.Warn("助手通话腿关联失败",
			zap.String("conversation_id", ev.ConversationID),
			zap.Bool("found", found),
			zap.Error(err))
		h.record(astEventCallStarted, outcomeError)
		return
	}
	h.record(astEventCallStarted, outcomeProcessed)
}

// handleTranscript 助手侧转写：role 映射后追加并广播，与网关片段同路
func (h *AssistantHandler) handleTranscript(ctx context.Context, ev *assistantEvent) {
	var speaker types.Speaker
	switch ev.Role {
	case "assistant":
		speaker = types.SpeakerAI
	case "customer":
		speaker = types.SpeakerCustomer
	default:
		h.logger.Warn("未知转写 role", zap.String("role", ev.Role))
		h.record(astEventTranscript, outcomeIgnored)
		return
	}

	ts := time.Now().UTC()
	if ev.Timestamp != nil {
		ts = ev.Timestamp.UTC()
	}
	if err := h.store.AppendTranscript(ctx, ev.ConversationID, speaker, ev.Text, ts); err != nil {
		h.logger.Error("助手转写追加失败",
			zap.String("conversation_id", ev.ConversationID),
			zap.Error(err))
		h.record(astEventTranscript, outcomeError)
		return
	}
	if h.collector != nil {
		h.collector.RecordTranscriptAppend(string(speaker))
	}

	h.broadcaster.BroadcastTranscriptEntry(ev.ConversationID, types.TranscriptEntry{
		Speaker:   speaker,
		Text:      ev.Text,
		Timestamp: ts,
	})
	h.record(astEventTranscript, outcomeProcessed)
}

// handleCallAnalyzed 分析结果并入元数据，失败静默
func (h *AssistantHandler) handleCallAnalyzed(ctx context.Context, ev *assistantEvent) {
	if ev.Analysis == nil {
		h.record(astEventCallAnalyzed, outcomeIgnored)
		return
	}

	meta := make(map[string]string)
	if ev.Analysis.Summary != "" {
		meta["summary"] = ev.Analysis.Summary
	}
	if ev.Analysis.Sentiment != "" {
		meta["sentiment"] = ev.Analysis.Sentiment
	}
	if len(meta) == 0 {
		h.record(astEventCallAnalyzed, outcomeIgnored)
		return
	}

	if _, _, err := h.store.Update(ctx, ev.ConversationID, types.SessionPatch{Metadata: meta}); err != nil {
		h.logger.Debug("分析结果合并失败，忽略",
			zap.String("conversation_id", ev.ConversationID),
			zap.Error(err))
	}
	h.record(astEventCallAnalyzed, outcomeProcessed)
}
