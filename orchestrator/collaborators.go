package orchestrator

import (
	"context"

	"github.com/BaSui01/handoff/ledger"
	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 🤝 外部协作方接口
// =============================================================================

// Telephony 电话信令协作方。所有调用从编排器的角度都是尽力而为：
// 失败记录日志后吞掉，绝不中止切换。
type Telephony interface {
	// Speak 向通话连接播报一段文本
	Speak(ctx context.Context, connectionRef, text, voiceHint string) error
	// MuteParticipant 将会议参与者静音
	MuteParticipant(ctx context.Context, conferenceRef, participantRef string) error
	// UnmuteParticipant 取消会议参与者静音
	UnmuteParticipant(ctx context.Context, conferenceRef, participantRef string) error
	// EndCall 结束一条通话腿
	EndCall(ctx context.Context, callRef string) error
}

// AssistantReply 助手协作方的应答
type AssistantReply struct {
	Message        string `json:"message"`
	ShouldEscalate bool   `json:"should_escalate"`
	Reason         string `json:"reason,omitempty"`
}

// Assistant 自动助手协作方。Respond 的 ShouldEscalate 输出是触发
// AI_TO_HUMAN 切换的信号之一。
type Assistant interface {
	Respond(ctx context.Context, conversationID string, transcript []types.TranscriptEntry) (*AssistantReply, error)
}

// SessionStore 编排器需要的会话存储子集
type SessionStore interface {
	Get(ctx context.Context, id string) (*types.ConversationSession, bool)
	Update(ctx context.Context, id string, patch types.SessionPatch) (*types.ConversationSession, bool, error)
}

// AuditLedger 编排器需要的账本子集
type AuditLedger interface {
	AppendSwitchRecord(ctx context.Context, rec types.SwitchRecord) error
	FindCallStatus(ctx context.Context, conversationID string) (*ledger.CallStatus, error)
}

// Broadcaster 切换结果的实时广播出口（由 gateway.Hub 实现）
type Broadcaster interface {
	// BroadcastStateUpdate 向会话房间广播最新会话状态
	BroadcastStateUpdate(sess *types.ConversationSession)
	// BroadcastSwitchEvent 向会话房间广播切换事件
	BroadcastSwitchEvent(conversationID string, direction types.SwitchDirection, newMode types.Mode, reason string)
}
