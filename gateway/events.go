package gateway

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 📤 出站事件协议
// =============================================================================

// EventType 出站事件变体标签
type EventType string

const (
	EventStateUpdate         EventType = "state_update"
	EventTranscriptUpdate    EventType = "transcript_update"
	EventSwitchEvent         EventType = "switch_event"
	EventCallEnd             EventType = "call_end"
	EventSessionHistory      EventType = "session_history" // 私有
	EventSwitchError         EventType = "switch_error"    // 私有
	EventQueueAdd            EventType = "queue_add"
	EventQueueUpdate         EventType = "queue_update"
	EventQueueRemove         EventType = "queue_remove"
	EventQueueMessagePreview EventType = "queue_message_preview"
	EventMetricsUpdate       EventType = "metrics_update"
)

// Event 出站事件封包。Data 的形状由 Type 决定。
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StateUpdatePayload 会话状态快照
type StateUpdatePayload struct {
	Session *types.ConversationSession `json:"session"`
}

// TranscriptUpdatePayload 单条转写追加
type TranscriptUpdatePayload struct {
	ConversationID string                `json:"conversation_id"`
	Entry          types.TranscriptEntry `json:"entry"`
}

// SwitchEventPayload 切换完成通知
type SwitchEventPayload struct {
	ConversationID string                `json:"conversation_id"`
	Direction      types.SwitchDirection `json:"direction"`
	NewMode        types.Mode            `json:"new_mode"`
	Reason         string                `json:"reason,omitempty"`
}

// CallEndPayload 通话结束通知
type CallEndPayload struct {
	ConversationID string `json:"conversation_id"`
}

// SessionHistoryPayload 加入房间时的私有历史回放
type SessionHistoryPayload struct {
	Session *types.ConversationSession `json:"session,omitempty"`
	Found   bool                       `json:"found"`
}

// SwitchErrorPayload 私有切换失败通知
type SwitchErrorPayload struct {
	ConversationID string          `json:"conversation_id"`
	Code           types.ErrorCode `json:"code"`
	Message        string          `json:"message"`
}

// QueuePayload 排队列表快照（add/update/remove 共用）
type QueuePayload struct {
	Entries []types.QueueEntry `json:"entries"`
}

// QueuePreviewPayload 排队会话的最新消息预览
type QueuePreviewPayload struct {
	ConversationID string `json:"conversation_id"`
	Preview        string `json:"preview"`
}

// MetricsPayload 仪表盘聚合计数
type MetricsPayload struct {
	ActiveConversations int `json:"active_conversations"`
	WaitingForHuman     int `json:"waiting_for_human"`
	InHumanMode         int `json:"in_human_mode"`
	InAIMode            int `json:"in_ai_mode"`
}

// newEvent 构造带时间戳的事件
func newEvent(t EventType, data interface{}) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// encode 序列化事件；失败返回 nil（调用方跳过投递并记日志）
func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
