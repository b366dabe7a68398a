package ledger

import (
	"time"

	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 🗄️ 账本数据模型
// =============================================================================

// CallRecord 通话/会话的审计行。每个会话一行，状态随生命周期更新，
// 终态（ENDED）时附带最终对话记录。
type CallRecord struct {
	ID             uint      `gorm:"primaryKey"`
	ConversationID string    `gorm:"uniqueIndex;size:64;not null"`
	Channel        string    `gorm:"size:16"`
	CustomerRef    string    `gorm:"size:128;index"`
	Mode           string    `gorm:"size:16"`
	Status         string    `gorm:"size:16;index"`
	StartedAt      time.Time `gorm:""`
	EndedAt        *time.Time
	// FinalTranscript 为 JSON 序列化的 TranscriptEntry 数组，仅终态时写入
	FinalTranscript string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName 指定表名
func (CallRecord) TableName() string {
	return "call_records"
}

// SwitchRecordRow 模式切换的审计行，只追加不修改。
type SwitchRecordRow struct {
	ID             uint      `gorm:"primaryKey"`
	ConversationID string    `gorm:"index;size:64;not null"`
	Direction      string    `gorm:"size:16;not null"`
	Reason         string    `gorm:"size:255"`
	OccurredAt     time.Time `gorm:"index"`
	CreatedAt      time.Time
}

// TableName 指定表名
func (SwitchRecordRow) TableName() string {
	return "switch_records"
}

// CallStatus FindCallStatus 的查询结果
type CallStatus struct {
	Status types.Status
	Mode   types.Mode
}
