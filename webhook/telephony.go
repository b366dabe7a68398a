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
// ☎️ 话务供应商回调
// =============================================================================

const providerTelephony = "telephony"

// 话务事件类型
const (
	telEventInitiated = "call.initiated"
	telEventAnswered  = "call.answered"
	telEventDTMF      = "call.dtmf.received"
	telEventHangup    = "call.hangup"
)

// telephonyEnvelope 话务回调封包
type telephonyEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		ID        string `json:"id"`
		Payload   struct {
			CallControlID string `json:"call_control_id"`
			CallSessionID string `json:"call_session_id"`
			From          string `json:"from"`
			To            string `json:"to"`
			Digit         string `json:"digit"`
		} `json:"payload"`
	} `json:"data"`
}

// TelephonyHandler 话务回调处理器
type TelephonyHandler struct {
	store       SessionStore
	switcher    Switcher
	ledger      CallLedger
	broadcaster Broadcaster
	dedup       *Deduper
	collector   *metrics.Collector
	opTimeout   time.Duration
	logger      *zap.Logger
}

// NewTelephonyHandler 创建话务回调处理器。collector 可为 nil。
func NewTelephonyHandler(store SessionStore, switcher Switcher, ledger CallLedger, broadcaster Broadcaster, dedup *Deduper, collector *metrics.Collector, opTimeout time.Duration, logger *zap.Logger) *TelephonyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelephonyHandler{
		store:       store,
		switcher:    switcher,
		ledger:      ledger,
		broadcaster: broadcaster,
		dedup:       dedup,
		collector:   collector,
		opTimeout:   opTimeout,
		logger:      logger.With(zap.String("component", "telephony_webhook")),
	}
}

func (h *TelephonyHandler) record(eventType, outcome string) {
	if h.collector != nil {
		h.collector.RecordWebhookEvent(providerTelephony, eventType, outcome)
	}
}

// ServeHTTP 接收话务回调并立即确认
func (h *TelephonyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	var env telephonyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.logger.Warn("话务回调载荷解析失败", zap.Error(err))
		h.record("unknown", outcomeError)
		writeAck(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opTimeout)
	defer cancel()

	eventType := env.Data.EventType
	if !h.dedup.FirstDelivery(ctx, providerTelephony, env.Data.ID) {
		h.logger.Debug("话务事件重复投递，跳过",
			zap.String("event_id", env.Data.ID),
			zap.String("event_type", eventType))
		h.record(eventType, outcomeDuplicate)
		writeAck(w)
		return
	}

	switch eventType {
	case telEventInitiated:
		h.handleInitiated(ctx, &env)
	case telEventAnswered:
		h.handleAnswered(ctx, &env)
	case telEventDTMF:
		h.handleDTMF(ctx, &env)
	case telEventHangup:
		h.handleHangup(ctx, &env)
	default:
		h.logger.Debug("忽略未知话务事件", zap.String("event_type", eventType))
		h.record(eventType, outcomeIgnored)
	}

	writeAck(w)
}

// handleInitiated 来电：创建 RINGING 会话并写入账本通话记录
func (h *TelephonyHandler) handleInitiated(ctx context.Context, env *telephonyEnvelope) {
	p := env.Data.Payload
	sess := types.NewConversationSession(p.CallSessionID, types.ChannelVoice, types.StatusRinging)
	sess.CustomerRef = p.From
	sess.Metadata[orchestrator.MetaCallControlID] = p.CallControlID

	if err := h.store.Create(ctx, sess); err != nil {
		h.logger.Error("来电会话创建失败",
			zap.String("conversation_id", p.CallSessionID),
			zap.Error(err))
		h.record(telEventInitiated, outcomeError)
		return
	}
	if h.collector != nil {
		h.collector.RecordSessionCreated(string(types.ChannelVoice))
	}

	// 账本通话记录在开场就建行，终态更新才有行可改
	if err := h.ledger.AppendCallRecord(ctx, sess); err != nil {
		h.logger.Warn("账本通话记录写入失败",
			zap.String("conversation_id", sess.ID),
			zap.Error(err))
	}

	h.broadcaster.BroadcastStateUpdate(sess)
	h.record(telEventInitiated, outcomeProcessed)
}

// handleAnswered 接通：置 ACTIVE 并广播
func (h *TelephonyHandler) handleAnswered(ctx context.Context, env *telephonyEnvelope) {
	active := types.StatusActive
	updated, found, err := h.store.Update(ctx, env.Data.Payload.CallSessionID, types.SessionPatch{Status: &active})
	if err != nil || !found {
		h.logger.Warn("接通状态更新失败",
			zap.String("conversation_id", env.Data.Payload.CallSessionID),
			zap.Bool("found", found),
			zap.Error(err))
		h.record(telEventAnswered, outcomeError)
		return
	}

	h.broadcaster.BroadcastStateUpdate(updated)
	h.record(telEventAnswered, outcomeProcessed)
}

// handleDTMF 按键：0 或 * 触发转人工，其余按键忽略
func (h *TelephonyHandler) handleDTMF(ctx context.Context, env *telephonyEnvelope) {
	digit := env.Data.Payload.Digit
	if digit != "0" && digit != "*" {
		h.record(telEventDTMF, outcomeIgnored)
		return
	}

	res := h.switcher.ExecuteSwitch(ctx, env.Data.Payload.CallSessionID, types.SwitchAIToHuman,
		"DTMF "+digit+" via VOICE keypad")
	if !res.Success {
		// 回执不依赖切换结果
		h.logger.Warn("按键转人工失败",
			zap.String("conversation_id", env.Data.Payload.CallSessionID),
			zap.String("digit", digit),
			zap.Error(res.Error))
		h.record(telEventDTMF, outcomeError)
		return
	}
	h.record(telEventDTMF, outcomeProcessed)
}

// handleHangup 挂断：置 ENDED、写账本终态、广播 call_end。
// 终态账本写入不依赖会话是否仍在存储中。
func (h *TelephonyHandler) handleHangup(ctx context.Context, env *telephonyEnvelope) {
	id := env.Data.Payload.CallSessionID

	ended := types.StatusEnded
	updated, found, err := h.store.Update(ctx, id, types.SessionPatch{Status: &ended})
	if err != nil {
		h.logger.Warn("挂断状态更新失败", zap.String("conversation_id", id), zap.Error(err))
	}

	var finalTranscript []types.TranscriptEntry
	if found {
		finalTranscript = updated.Transcript
	}
	if err := h.ledger.UpdateCallStatus(ctx, id, types.StatusEnded, finalTranscript); err != nil {
		h.logger.Error("账本终态写入失败", zap.String("conversation_id", id), zap.Error(err))
	}

	h.broadcaster.BroadcastCallEnd(id)
	h.record(telEventHangup, outcomeProcessed)
}
