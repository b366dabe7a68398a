package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 📒 账本存储
// =============================================================================

// Ledger 审计账本存储
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New 创建账本存储。db 为 nil 时账本降级运行：写入静默丢弃，
// 回查一律视为无记录。
func New(db *gorm.DB, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger.With(zap.String("component", "ledger")),
	}
}

// InitDatabase 初始化账本表结构
// 支持: PostgreSQL, MySQL, SQLite
func InitDatabase(db *gorm.DB) error {
	// 自动迁移所有表格
	if err := db.AutoMigrate(
		&CallRecord{},
		&SwitchRecordRow{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// =============================================================================
// 🎯 核心操作
// =============================================================================

// AppendCallRecord 为新会话追加一条通话记录
func (l *Ledger) AppendCallRecord(ctx context.Context, sess *types.ConversationSession) error {
	if l.db == nil {
		return nil
	}

	rec := CallRecord{
		ConversationID: sess.ID,
		Channel:        string(sess.Channel),
		CustomerRef:    sess.CustomerRef,
		Mode:           string(sess.Mode),
		Status:         string(sess.Status),
		StartedAt:      sess.StartedAt,
	}

	if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to append call record: %w", err)
	}

	return nil
}

// AppendSwitchRecord 追加一条切换记录。每次成功切换恰好一条。
func (l *Ledger) AppendSwitchRecord(ctx context.Context, rec types.SwitchRecord) error {
	if l.db == nil {
		return nil
	}

	row := SwitchRecordRow{
		ConversationID: rec.ConversationID,
		Direction:      string(rec.Direction),
		Reason:         rec.Reason,
		OccurredAt:     rec.OccurredAt,
	}

	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append switch record: %w", err)
	}

	// 切换后的模式同步到通话记录，供 FindCallStatus 回退查询
	newMode := string(rec.Direction.TargetMode())
	if err := l.db.WithContext(ctx).Model(&CallRecord{}).
		Where("conversation_id = ?", rec.ConversationID).
		Update("mode", newMode).Error; err != nil {
		l.logger.Warn("failed to sync mode to call record",
			zap.String("conversation_id", rec.ConversationID),
			zap.Error(err))
	}

	return nil
}

// UpdateCallStatus 更新通话记录状态。status 为 ENDED 时记录结束时间，
// finalTranscript 非空时一并持久化最终对话记录。
func (l *Ledger) UpdateCallStatus(ctx context.Context, conversationID string, status types.Status, finalTranscript []types.TranscriptEntry) error {
	if l.db == nil {
		return nil
	}

	updates := map[string]any{
		"status": string(status),
	}

	if status == types.StatusEnded {
		now := time.Now().UTC()
		updates["ended_at"] = &now
	}

	if len(finalTranscript) > 0 {
		data, err := json.Marshal(finalTranscript)
		if err != nil {
			return fmt.Errorf("failed to marshal final transcript: %w", err)
		}
		updates["final_transcript"] = string(data)
	}

	result := l.db.WithContext(ctx).Model(&CallRecord{}).
		Where("conversation_id = ?", conversationID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update call status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no call record for conversation %s", conversationID)
	}

	return nil
}

// FindCallStatus 回退查询：会话存储过期后，由账本区分
// "通话确实结束"与"会话仅仅过期"。缺失返回 (nil, nil)。
func (l *Ledger) FindCallStatus(ctx context.Context, conversationID string) (*CallStatus, error) {
	if l.db == nil {
		return nil, nil
	}

	var rec CallRecord
	err := l.db.WithContext(ctx).
		Select("status", "mode").
		Where("conversation_id = ?", conversationID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find call status: %w", err)
	}

	return &CallStatus{Status: types.Status(rec.Status), Mode: types.Mode(rec.Mode)}, nil
}

// SwitchHistory 查询一个会话的全部切换记录（按发生时间升序）
func (l *Ledger) SwitchHistory(ctx context.Context, conversationID string) ([]types.SwitchRecord, error) {
	if l.db == nil {
		return nil, nil
	}

	var rows []SwitchRecordRow
	if err := l.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("occurred_at asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load switch history: %w", err)
	}

	records := make([]types.SwitchRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, types.SwitchRecord{
			ConversationID: row.ConversationID,
			Direction:      types.SwitchDirection(row.Direction),
			Reason:         row.Reason,
			OccurredAt:     row.OccurredAt,
		})
	}
	return records, nil
}
