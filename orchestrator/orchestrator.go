package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/internal/metrics"
	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 🔀 模式切换编排器
// =============================================================================

// 会话 Metadata 中约定的协作方引用键
const (
	// MetaAssistantCallID 助手通话腿的引用，切到人工时需要挂断
	MetaAssistantCallID = "assistant_call_id"
	// MetaCallControlID 客户侧通话连接的引用，用于播报过渡提示
	MetaCallControlID = "call_control_id"
	// MetaConferenceID 会议引用
	MetaConferenceID = "conference_id"
	// MetaHumanParticipantID 人工坐席在会议中的参与者引用
	MetaHumanParticipantID = "human_participant_id"
)

// 过渡提示文案
const (
	noticeToHuman = "Please hold while I connect you with a representative."
	noticeToAI    = "Thank you for your patience. Our automated assistant will continue to help you."
)

// CanSwitchResult canSwitch 的只读判定结果
type CanSwitchResult struct {
	Allowed bool            `json:"allowed"`
	Reason  types.ErrorCode `json:"reason,omitempty"`
}

// Orchestrator 模式切换编排器。它是整个系统中唯一允许改写 Mode 的组件。
type Orchestrator struct {
	store       SessionStore
	ledger      AuditLedger
	telephony   Telephony
	broadcaster Broadcaster
	collector   *metrics.Collector
	cfg         config.TelephonyConfig
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// New 创建编排器。broadcaster 可在网关就绪后通过 SetBroadcaster 注入。
func New(store SessionStore, ledger AuditLedger, telephony Telephony, cfg config.TelephonyConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		ledger:    ledger,
		telephony: telephony,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
}

// SetBroadcaster 注入实时广播出口（网关与编排器互相依赖，网关后构造）
func (o *Orchestrator) SetBroadcaster(b Broadcaster) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.broadcaster = b
}

// SetCollector 注入指标收集器
func (o *Orchestrator) SetCollector(c *metrics.Collector) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.collector = c
}

// ExecuteSwitch 执行一次模式切换。
//
// 校验失败（NOT_FOUND / ALREADY_IN_MODE / NOT_ACTIVE）不产生任何副作用，
// 也不写审计记录；校验通过后，电话信令与账本写入都是尽力而为，
// 失败只记日志，切换本身照常完成。
func (o *Orchestrator) ExecuteSwitch(ctx context.Context, conversationID string, direction types.SwitchDirection, reason string) types.SwitchResult {
	start := time.Now()
	res := o.executeSwitch(ctx, conversationID, direction, reason)

	o.mu.RLock()
	c := o.collector
	o.mu.RUnlock()
	if c != nil {
		result := "success"
		if !res.Success {
			result = "internal"
			if res.Error != nil {
				result = strings.ToLower(string(res.Error.Code))
			}
		}
		c.RecordSwitch(string(direction), result, time.Since(start))
	}
	return res
}

func (o *Orchestrator) executeSwitch(ctx context.Context, conversationID string, direction types.SwitchDirection, reason string) types.SwitchResult {
	o.mu.RLock()
	if o.closed {
		o.mu.RUnlock()
		return failure(types.NewError(types.ErrInternal, "编排器已关闭"))
	}
	o.mu.RUnlock()

	sess, found := o.store.Get(ctx, conversationID)
	if !found {
		return failure(types.NewError(types.ErrNotFound, "会话不存在或已过期: "+conversationID))
	}

	target := direction.TargetMode()
	if sess.Mode == target {
		return failure(types.NewError(types.ErrAlreadyInMode, "会话已处于 "+string(target)+" 模式"))
	}
	if sess.Status != types.StatusActive {
		return failure(types.NewError(types.ErrNotActive, "会话状态为 "+string(sess.Status)+"，仅 ACTIVE 可切换"))
	}

	o.performSideEffects(ctx, sess, direction)

	newCount := sess.SwitchCount + 1
	updated, found, err := o.store.Update(ctx, conversationID, types.SessionPatch{
		Mode:        &target,
		SwitchCount: &newCount,
	})
	if err != nil {
		return failure(types.NewError(types.ErrInternal, "会话状态写入失败").WithCause(err))
	}
	if !found {
		// 副作用与写入之间会话过期，属于边界竞态
		return failure(types.NewError(types.ErrNotFound, "会话在切换过程中过期: "+conversationID))
	}

	now := time.Now().UTC()
	if appendErr := o.ledger.AppendSwitchRecord(ctx, types.SwitchRecord{
		ConversationID: conversationID,
		Direction:      direction,
		Reason:         reason,
		OccurredAt:     now,
	}); appendErr != nil {
		o.logger.Error("切换审计记录写入失败",
			zap.String("conversation_id", conversationID),
			zap.String("direction", string(direction)),
			zap.Error(appendErr))
	}

	o.mu.RLock()
	b := o.broadcaster
	o.mu.RUnlock()
	if b != nil {
		b.BroadcastStateUpdate(updated)
		b.BroadcastSwitchEvent(conversationID, direction, target, reason)
	}

	o.logger.Info("模式切换完成",
		zap.String("conversation_id", conversationID),
		zap.String("direction", string(direction)),
		zap.String("new_mode", string(target)),
		zap.Int("switch_count", updated.SwitchCount))

	return types.SwitchResult{
		Success:   true,
		NewMode:   target,
		Timestamp: now,
	}
}

// CanSwitch 只读前置校验。两级查询：优先会话存储；存储未命中时回查账本,
// 区分「通话已正常结束」与「会话仅仅过期」两种更具体的拒绝原因。
func (o *Orchestrator) CanSwitch(ctx context.Context, conversationID string, direction types.SwitchDirection) CanSwitchResult {
	if sess, found := o.store.Get(ctx, conversationID); found {
		switch {
		case sess.Mode == direction.TargetMode():
			return CanSwitchResult{Allowed: false, Reason: types.ErrAlreadyInMode}
		case sess.Status != types.StatusActive:
			return CanSwitchResult{Allowed: false, Reason: types.ErrNotActive}
		default:
			return CanSwitchResult{Allowed: true}
		}
	}

	status, err := o.ledger.FindCallStatus(ctx, conversationID)
	if err != nil {
		o.logger.Warn("账本回查失败", zap.String("conversation_id", conversationID), zap.Error(err))
		return CanSwitchResult{Allowed: false, Reason: types.ErrNotFound}
	}
	if status == nil {
		return CanSwitchResult{Allowed: false, Reason: types.ErrNotFound}
	}
	if status.Status.Terminal() {
		return CanSwitchResult{Allowed: false, Reason: types.ErrCallEnded}
	}
	return CanSwitchResult{Allowed: false, Reason: types.ErrSessionExpired}
}

// performSideEffects 执行方向相关的电话信令副作用，全部尽力而为
func (o *Orchestrator) performSideEffects(ctx context.Context, sess *types.ConversationSession, direction types.SwitchDirection) {
	if o.telephony == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	log := o.logger.With(
		zap.String("conversation_id", sess.ID),
		zap.String("direction", string(direction)))

	switch direction {
	case types.SwitchAIToHuman:
		if callID, ok := sess.Metadata[MetaAssistantCallID]; ok && callID != "" {
			if err := o.telephony.EndCall(ctx, callID); err != nil {
				log.Warn("挂断助手通话腿失败", zap.Error(err))
			}
		}
		if sess.Channel == types.ChannelVoice {
			if ccID, ok := sess.Metadata[MetaCallControlID]; ok && ccID != "" {
				if err := o.telephony.Speak(ctx, ccID, noticeToHuman, o.cfg.TransitionVoice); err != nil {
					log.Warn("播报转人工提示失败", zap.Error(err))
				}
			}
		}
		o.setParticipantMuted(ctx, log, sess, false)

	case types.SwitchHumanToAI:
		if sess.Channel == types.ChannelVoice {
			if ccID, ok := sess.Metadata[MetaCallControlID]; ok && ccID != "" {
				if err := o.telephony.Speak(ctx, ccID, noticeToAI, o.cfg.TransitionVoice); err != nil {
					log.Warn("播报转 AI 提示失败", zap.Error(err))
				}
			}
		}
		o.setParticipantMuted(ctx, log, sess, true)
	}
}

// setParticipantMuted 调整人工坐席在会议中的静音状态
func (o *Orchestrator) setParticipantMuted(ctx context.Context, log *zap.Logger, sess *types.ConversationSession, muted bool) {
	confID := sess.Metadata[MetaConferenceID]
	partID := sess.Metadata[MetaHumanParticipantID]
	if confID == "" || partID == "" {
		return
	}
	var err error
	if muted {
		err = o.telephony.MuteParticipant(ctx, confID, partID)
	} else {
		err = o.telephony.UnmuteParticipant(ctx, confID, partID)
	}
	if err != nil {
		log.Warn("调整会议静音状态失败", zap.Bool("muted", muted), zap.Error(err))
	}
}

// Close 关闭编排器，后续 ExecuteSwitch 将直接返回 INTERNAL
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func failure(err *types.Error) types.SwitchResult {
	return types.SwitchResult{
		Success:   false,
		Timestamp: time.Now().UTC(),
		Error:     err,
	}
}
