package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 🤝 下游依赖接口
// =============================================================================

// SessionStore 适配器需要的会话存储子集
type SessionStore interface {
	Create(ctx context.Context, sess *types.ConversationSession) error
	Get(ctx context.Context, id string) (*types.ConversationSession, bool)
	Update(ctx context.Context, id string, patch types.SessionPatch) (*types.ConversationSession, bool, error)
	AppendTranscript(ctx context.Context, id string, speaker types.Speaker, text string, ts time.Time) error
}

// Switcher 适配器需要的编排器子集
type Switcher interface {
	ExecuteSwitch(ctx context.Context, conversationID string, direction types.SwitchDirection, reason string) types.SwitchResult
}

// CallLedger 适配器需要的账本子集
type CallLedger interface {
	AppendCallRecord(ctx context.Context, sess *types.ConversationSession) error
	UpdateCallStatus(ctx context.Context, conversationID string, status types.Status, finalTranscript []types.TranscriptEntry) error
}

// Broadcaster 适配器需要的网关广播子集
type Broadcaster interface {
	BroadcastStateUpdate(sess *types.ConversationSession)
	BroadcastTranscriptEntry(conversationID string, entry types.TranscriptEntry)
	BroadcastCallEnd(conversationID string)
}

// 处理结果，用于指标 outcome 标签
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeError     = "error"
)

// writeAck 确认回执。无论内部结果如何都是 200，供应商对非 2xx 会重试。
func writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}
