package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 💾 会话存储
// =============================================================================

// keyPrefix 会话键前缀
const keyPrefix = "conversation:"

// Store 会话存储管理器
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	locks  *keyedMutex
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewStore 创建会话存储
func NewStore(cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := &Store{
		redis:  client,
		ttl:    ttl,
		locks:  newKeyedMutex(64),
		logger: logger.With(zap.String("component", "session_store")),
	}

	logger.Info("session store initialized",
		zap.String("addr", cfg.Addr),
		zap.Duration("ttl", ttl),
	)

	return s, nil
}

// NewStoreWithClient 使用现成的 Redis 客户端创建会话存储（供测试与复用连接）
func NewStoreWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		redis:  client,
		ttl:    ttl,
		locks:  newKeyedMutex(64),
		logger: logger.With(zap.String("component", "session_store")),
	}
}

// =============================================================================
// 🎯 核心操作
// =============================================================================

// Create 以固定 TTL 写入会话，键存在时覆盖。存储不可达是硬错误。
func (s *Store) Create(ctx context.Context, sess *types.ConversationSession) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("session store is closed")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.redis.Set(ctx, keyPrefix+sess.ID, data, s.ttl).Err(); err != nil {
		s.logger.Error("session create failed", zap.String("id", sess.ID), zap.Error(err))
		return types.NewError(types.ErrStoreUnavailable, "session create failed").WithCause(err)
	}

	return nil
}

// Get 读取会话。缺失（过期或从未创建）是合法结果；
// 读路径的连接故障同样降级为缺失，仅记录日志。
func (s *Store) Get(ctx context.Context, id string) (*types.ConversationSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false
	}

	val, err := s.redis.Get(ctx, keyPrefix+id).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		// 读故障降级为缺失：所有调用方都已处理"会话不存在"
		s.logger.Warn("session get failed, treating as absent",
			zap.String("id", id), zap.Error(err))
		return nil, false
	}

	var sess types.ConversationSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		s.logger.Warn("session unmarshal failed, treating as absent",
			zap.String("id", id), zap.Error(err))
		return nil, false
	}

	return &sess, true
}

// Update 浅合并局部字段后重写并刷新 TTL。
// 键缺失时无副作用，返回 (nil, false, nil)；会话已处于 ENDED 终态时拒绝变更。
// 同一 ID 的变更经键锁串行化，并发更新不会丢失写入。
func (s *Store) Update(ctx context.Context, id string, patch types.SessionPatch) (*types.ConversationSession, bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, found := s.Get(ctx, id)
	if !found {
		return nil, false, nil
	}

	// ENDED 为终态，之后任何变更一律拒绝
	if sess.Status.Terminal() {
		return sess, true, types.NewError(types.ErrCallEnded, "会话已结束，拒绝变更")
	}

	applyPatch(sess, patch)

	if err := s.rewrite(ctx, sess, s.ttl); err != nil {
		return nil, true, err
	}

	return sess, true, nil
}

// AppendTranscript 追加一条对话记录。键缺失时静默跳过，
// 终态会话拒绝追加。ts 为零值时取当前时间。已有条目不会被修改。
func (s *Store) AppendTranscript(ctx context.Context, id string, speaker types.Speaker, text string, ts time.Time) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, found := s.Get(ctx, id)
	if !found {
		s.logger.Debug("append to absent session skipped", zap.String("id", id))
		return nil
	}

	// 终态会话的对话记录已冻结
	if sess.Status.Terminal() {
		return types.NewError(types.ErrCallEnded, "会话已结束，对话记录不再追加")
	}

	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	sess.Transcript = append(sess.Transcript, types.TranscriptEntry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: ts,
	})

	// 追加保留剩余 TTL，不重置过期时间
	return s.rewrite(ctx, sess, redis.KeepTTL)
}

// Delete 显式删除会话（管理清理用，正常挂断不删除）
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("session store is closed")
	}

	if err := s.redis.Del(ctx, keyPrefix+id).Err(); err != nil {
		s.logger.Error("session delete failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("session delete failed: %w", err)
	}

	return nil
}

// List 扫描全部在存会话（队列投影与仪表盘聚合用）。单条反序列化
// 失败跳过该条，不中断整个扫描。
func (s *Store) List(ctx context.Context) ([]*types.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("session store is closed")
	}

	var sessions []*types.ConversationSession
	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			// 扫描与读取之间过期属正常情况
			continue
		}
		var sess types.ConversationSession
		if err := json.Unmarshal(data, &sess); err != nil {
			s.logger.Warn("skipping undecodable session", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		sessions = append(sessions, &sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("session scan failed: %w", err)
	}

	return sessions, nil
}

// =============================================================================
// 🏥 连接管理
// =============================================================================

// Ping 检查 Redis 连接
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("session store is closed")
	}

	return s.redis.Ping(ctx).Err()
}

// Client 返回底层 Redis 客户端（供 webhook 去重等共享连接的组件使用）
func (s *Store) Client() *redis.Client {
	return s.redis
}

// Close 关闭会话存储
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.logger.Info("closing session store")

	return s.redis.Close()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// rewrite 序列化并写回会话
func (s *Store) rewrite(ctx context.Context, sess *types.ConversationSession, ttl time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("session store is closed")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.redis.Set(ctx, keyPrefix+sess.ID, data, ttl).Err(); err != nil {
		s.logger.Error("session rewrite failed", zap.String("id", sess.ID), zap.Error(err))
		return types.NewError(types.ErrStoreUnavailable, "session rewrite failed").WithCause(err)
	}

	return nil
}

// applyPatch 对会话做浅合并。Metadata 按键合并而非整体替换。
func applyPatch(sess *types.ConversationSession, patch types.SessionPatch) {
	if patch.CustomerRef != nil {
		sess.CustomerRef = *patch.CustomerRef
	}
	if patch.Mode != nil {
		sess.Mode = *patch.Mode
	}
	if patch.Status != nil {
		sess.Status = *patch.Status
	}
	if patch.SwitchCount != nil {
		sess.SwitchCount = *patch.SwitchCount
	}
	if len(patch.Metadata) > 0 {
		if sess.Metadata == nil {
			sess.Metadata = make(map[string]string, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			sess.Metadata[k] = v
		}
	}
}
