package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/gateway"
	"github.com/BaSui01/handoff/internal/metrics"
	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 📥 排队投影
// =============================================================================

// SessionLister 投影需要的会话存储子集
type SessionLister interface {
	List(ctx context.Context) ([]*types.ConversationSession, error)
}

// Broadcaster 投影需要的网关广播子集
type Broadcaster interface {
	BroadcastQueueSnapshot(t gateway.EventType, entries []types.QueueEntry)
	BroadcastQueuePreview(conversationID, preview string)
	BroadcastMetrics(payload gateway.MetricsPayload)
}

// Projector 周期性重算排队投影并广播差分
type Projector struct {
	store       SessionLister
	broadcaster Broadcaster
	collector   *metrics.Collector
	cfg         config.QueueConfig
	logger      *zap.Logger

	mu   sync.Mutex
	prev map[string]types.QueueEntry
}

// NewProjector 创建排队投影。collector 可为 nil。
func NewProjector(store SessionLister, broadcaster Broadcaster, collector *metrics.Collector, cfg config.QueueConfig, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		store:       store,
		broadcaster: broadcaster,
		collector:   collector,
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "queue_projector")),
		prev:        make(map[string]types.QueueEntry),
	}
}

// Run 按固定间隔刷新投影，直到 ctx 取消
func (p *Projector) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh 全量重算一次投影并广播差分与聚合计数
func (p *Projector) Refresh(ctx context.Context) {
	sessions, err := p.store.List(ctx)
	if err != nil {
		p.logger.Warn("会话扫描失败，跳过本轮刷新", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	entries := p.project(sessions, now)
	payload := aggregate(sessions)

	p.mu.Lock()
	prev := p.prev
	current := make(map[string]types.QueueEntry, len(entries))
	for _, e := range entries {
		current[e.ID] = e
	}
	p.prev = current
	p.mu.Unlock()

	var added, removed bool
	for _, e := range entries {
		old, ok := prev[e.ID]
		if !ok {
			added = true
			continue
		}
		if old.Preview != e.Preview && e.Preview != "" {
			p.broadcaster.BroadcastQueuePreview(e.ID, e.Preview)
		}
	}
	for id, old := range prev {
		if _, ok := current[id]; !ok {
			removed = true
			// 离队即等待结束
			if p.collector != nil {
				p.collector.ObserveWaitSeconds(now.Sub(old.CreatedAt).Seconds())
			}
		}
	}

	if added {
		p.broadcaster.BroadcastQueueSnapshot(gateway.EventQueueAdd, entries)
	}
	if removed {
		p.broadcaster.BroadcastQueueSnapshot(gateway.EventQueueRemove, entries)
	}
	p.broadcaster.BroadcastQueueSnapshot(gateway.EventQueueUpdate, entries)
	p.broadcaster.BroadcastMetrics(payload)

	if p.collector != nil {
		p.collector.SetQueueDepth(len(entries))
	}
}

// project 生成待接入列表：未结束、仍由 AI 接待的会话
func (p *Projector) project(sessions []*types.ConversationSession, now time.Time) []types.QueueEntry {
	var entries []types.QueueEntry
	for _, sess := range sessions {
		if sess.Status.Terminal() {
			continue
		}
		if sess.Mode != types.ModeAIAgent {
			continue
		}

		display := sess.CustomerRef
		if display == "" {
			display = sess.ID
		}
		preview := ""
		if last := sess.LastEntry(); last != nil {
			preview = truncate(last.Text, p.cfg.PreviewLength)
		}
		entries = append(entries, types.QueueEntry{
			ID:           sess.ID,
			Channel:      sess.Channel,
			DisplayName:  display,
			WaitSeconds:  int(now.Sub(sess.StartedAt).Seconds()),
			Preview:      preview,
			Mode:         sess.Mode,
			CreatedAt:    sess.StartedAt,
			AttendedFlag: sess.Mode == types.ModeHumanRep,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries
}

// aggregate 计算仪表盘聚合计数
func aggregate(sessions []*types.ConversationSession) gateway.MetricsPayload {
	var payload gateway.MetricsPayload
	for _, sess := range sessions {
		if sess.Status.Terminal() {
			continue
		}
		payload.ActiveConversations++
		switch sess.Mode {
		case types.ModeAIAgent:
			payload.InAIMode++
			if sess.Status == types.StatusActive {
				payload.WaitingForHuman++
			}
		case types.ModeHumanRep:
			payload.InHumanMode++
		}
	}
	return payload
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
