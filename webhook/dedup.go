package webhook

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 🔁 事件去重
// =============================================================================

const dedupKeyPrefix = "webhook:event:"

// Deduper 以供应商事件 id 为键的投递去重器，SETNX + TTL 实现
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper 创建去重器。ttl 决定事件 id 的记忆窗口。
func NewDeduper(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "webhook_dedup")),
	}
}

// FirstDelivery 报告该事件是否首次投递。空事件 id 无法去重，按首次
// 处理；Redis 失败同样放行，可用性优先于去重。
func (d *Deduper) FirstDelivery(ctx context.Context, provider, eventID string) bool {
	if eventID == "" {
		return true
	}
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+provider+":"+eventID, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("去重检查失败，按首次投递处理",
			zap.String("provider", provider),
			zap.String("event_id", eventID),
			zap.Error(err))
		return true
	}
	return ok
}
