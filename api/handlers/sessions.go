package handlers

import (
	"context"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/handoff/orchestrator"
	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 🗂️ 会话管理 Handler
// =============================================================================

// SessionReader 会话存储的只读/删除视图
type SessionReader interface {
	Get(ctx context.Context, id string) (*types.ConversationSession, bool)
	List(ctx context.Context) ([]*types.ConversationSession, error)
	Delete(ctx context.Context, id string) error
}

// SwitchAuditor 切换历史与预检查
type SwitchAuditor interface {
	SwitchHistory(ctx context.Context, conversationID string) ([]types.SwitchRecord, error)
}

// SwitchChecker 切换可行性预检查
type SwitchChecker interface {
	CanSwitch(ctx context.Context, conversationID string, direction types.SwitchDirection) orchestrator.CanSwitchResult
}

// SessionMetrics 会话管理相关指标
type SessionMetrics interface {
	RecordSessionDeleted()
}

// SessionHandler 会话管理处理器
type SessionHandler struct {
	store     SessionReader
	auditor   SwitchAuditor
	checker   SwitchChecker
	collector SessionMetrics
	logger    *zap.Logger
}

// NewSessionHandler 创建会话管理处理器
func NewSessionHandler(store SessionReader, auditor SwitchAuditor, checker SwitchChecker, collector SessionMetrics, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		store:     store,
		auditor:   auditor,
		checker:   checker,
		collector: collector,
		logger:    logger.With(zap.String("component", "session_handler")),
	}
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// SessionSummary 会话列表项
type SessionSummary struct {
	ID          string        `json:"id"`
	Channel     types.Channel `json:"channel"`
	Mode        types.Mode    `json:"mode"`
	Status      types.Status  `json:"status"`
	CustomerRef string        `json:"customer_ref,omitempty"`
	SwitchCount int           `json:"switch_count"`
	Turns       int           `json:"turns"`
}

// HandleList 处理 GET /api/v1/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.List(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrStoreUnavailable, "failed to list sessions").
			WithCause(err).WithRetryable(true), h.logger)
		return
	}

	// 按开始时间排序，输出稳定
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, SessionSummary{
			ID:          sess.ID,
			Channel:     sess.Channel,
			Mode:        sess.Mode,
			Status:      sess.Status,
			CustomerRef: sess.CustomerRef,
			SwitchCount: sess.SwitchCount,
			Turns:       len(sess.Transcript),
		})
	}

	WriteSuccess(w, map[string]interface{}{
		"sessions": summaries,
		"total":    len(summaries),
	})
}

// HandleGet 处理 GET /api/v1/sessions/{id}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "session id is required"), h.logger)
		return
	}

	sess, found := h.store.Get(r.Context(), id)
	if !found {
		WriteError(w, types.NewError(types.ErrNotFound, "session not found"), h.logger)
		return
	}

	WriteSuccess(w, sess)
}

// HandleDelete 处理 DELETE /api/v1/sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "session id is required"), h.logger)
		return
	}

	if _, found := h.store.Get(r.Context(), id); !found {
		WriteError(w, types.NewError(types.ErrNotFound, "session not found"), h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		WriteError(w, types.NewError(types.ErrStoreUnavailable, "failed to delete session").
			WithCause(err).WithRetryable(true), h.logger)
		return
	}

	if h.collector != nil {
		h.collector.RecordSessionDeleted()
	}

	h.logger.Info("session deleted", zap.String("conversation_id", id))
	WriteSuccess(w, map[string]string{"id": id})
}

// HandleSwitchHistory 处理 GET /api/v1/sessions/{id}/switches
func (h *SessionHandler) HandleSwitchHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "session id is required"), h.logger)
		return
	}

	records, err := h.auditor.SwitchHistory(r.Context(), id)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternal, "failed to load switch history").
			WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"conversation_id": id,
		"switches":        records,
		"total":           len(records),
	})
}

// CanSwitchResponse 切换预检查结果
type CanSwitchResponse struct {
	ConversationID string                `json:"conversation_id"`
	Direction      types.SwitchDirection `json:"direction"`
	Allowed        bool                  `json:"allowed"`
	Reason         types.ErrorCode       `json:"reason,omitempty"`
}

// HandleCanSwitch 处理 GET /api/v1/sessions/{id}/can-switch?direction=AI_TO_HUMAN
func (h *SessionHandler) HandleCanSwitch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "session id is required"), h.logger)
		return
	}

	direction := types.SwitchDirection(r.URL.Query().Get("direction"))
	if !direction.Valid() {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "direction must be AI_TO_HUMAN or HUMAN_TO_AI"), h.logger)
		return
	}

	result := h.checker.CanSwitch(r.Context(), id, direction)

	WriteSuccess(w, CanSwitchResponse{
		ConversationID: id,
		Direction:      direction,
		Allowed:        result.Allowed,
		Reason:         result.Reason,
	})
}
