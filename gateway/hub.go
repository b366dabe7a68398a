package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/internal/metrics"
	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 📡 房间中枢
// =============================================================================

// 房间命名
const (
	roomConversationPrefix = "conversation:"
	RoomMetrics            = "metrics"
	RoomQueue              = "queue"
)

// RoomConversation 返回会话房间名
func RoomConversation(conversationID string) string {
	return roomConversationPrefix + conversationID
}

// roomKind 房间类型，用于订阅数指标
func roomKind(room string) string {
	switch {
	case strings.HasPrefix(room, roomConversationPrefix):
		return "conversation"
	default:
		return room
	}
}

// SessionReader 网关需要的会话存储子集
type SessionReader interface {
	Get(ctx context.Context, id string) (*types.ConversationSession, bool)
	AppendTranscript(ctx context.Context, id string, speaker types.Speaker, text string, ts time.Time) error
}

// Switcher 网关需要的编排器子集
type Switcher interface {
	ExecuteSwitch(ctx context.Context, conversationID string, direction types.SwitchDirection, reason string) types.SwitchResult
}

// Hub 维护房间成员关系并投递事件。所有成员变更与广播都在
// Run 的单协程中执行，以保证同一房间内的事件顺序。
type Hub struct {
	cfg       config.GatewayConfig
	opTimeout time.Duration
	store     SessionReader
	switcher  Switcher
	collector *metrics.Collector
	logger    *zap.Logger

	ops  chan func()
	done chan struct{}

	// 以下字段仅在 Run 协程中访问
	rooms      map[string]map[*Client]struct{}
	kindCounts map[string]int

	mu     sync.Mutex
	closed bool
}

// NewHub 创建房间中枢。collector 可为 nil（不记指标）。
func NewHub(cfg config.GatewayConfig, opTimeout time.Duration, store SessionReader, switcher Switcher, collector *metrics.Collector, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:        cfg,
		opTimeout:  opTimeout,
		store:      store,
		switcher:   switcher,
		collector:  collector,
		logger:     logger.With(zap.String("component", "gateway_hub")),
		ops:        make(chan func(), 256),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		kindCounts: make(map[string]int),
	}
}

// Run 处理成员变更与广播，直到 ctx 取消或 Close 被调用
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-h.done:
			return
		case fn := <-h.ops:
			fn()
		}
	}
}

// Close 停止中枢并断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.done)
	h.mu.Unlock()
}

// do 将操作排入 Run 协程；中枢已关闭时直接丢弃
func (h *Hub) do(fn func()) {
	select {
	case h.ops <- fn:
	case <-h.done:
	}
}

// =============================================================================
// 🚪 成员管理（仅 Run 协程内调用）
// =============================================================================

func (h *Hub) joinRoom(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	if _, already := members[c]; already {
		return
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}

	kind := roomKind(room)
	h.kindCounts[kind]++
	if h.collector != nil {
		h.collector.SetRoomSubscribers(kind, h.kindCounts[kind])
	}
}

func (h *Hub) leaveRoom(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, member := members[c]; !member {
		return
	}
	delete(members, c)
	delete(c.rooms, room)
	if len(members) == 0 {
		delete(h.rooms, room)
	}

	kind := roomKind(room)
	h.kindCounts[kind]--
	if h.collector != nil {
		h.collector.SetRoomSubscribers(kind, h.kindCounts[kind])
	}
}

func (h *Hub) dropClient(c *Client) {
	for room := range c.rooms {
		h.leaveRoom(c, room)
	}
	c.close()
}

// Join 将客户端加入房间
func (h *Hub) Join(c *Client, room string) {
	h.do(func() { h.joinRoom(c, room) })
}

// Leave 将客户端移出房间
func (h *Hub) Leave(c *Client, room string) {
	h.do(func() { h.leaveRoom(c, room) })
}

// Unregister 断开客户端并移出其全部房间
func (h *Hub) Unregister(c *Client) {
	h.do(func() { h.dropClient(c) })
}

// =============================================================================
// 📣 事件投递
// =============================================================================

// broadcast 向房间全员投递事件；发不出去的慢客户端被断开
func (h *Hub) broadcast(room string, ev Event) {
	h.do(func() {
		members, ok := h.rooms[room]
		if !ok {
			return
		}
		data, err := ev.encode()
		if err != nil {
			h.logger.Error("事件序列化失败", zap.String("event", string(ev.Type)), zap.Error(err))
			return
		}
		if h.collector != nil {
			h.collector.RecordEventBroadcast(string(ev.Type))
		}
		var slow []*Client
		for c := range members {
			if !c.trySend(data) {
				slow = append(slow, c)
			}
		}
		for _, c := range slow {
			h.logger.Warn("客户端消费过慢，断开连接", zap.String("client_id", c.id))
			h.dropClient(c)
		}
	})
}

// SendPrivate 向单个客户端投递私有事件，经 Run 协程保持与广播的相对顺序
func (h *Hub) SendPrivate(c *Client, ev Event) {
	h.do(func() {
		data, err := ev.encode()
		if err != nil {
			h.logger.Error("事件序列化失败", zap.String("event", string(ev.Type)), zap.Error(err))
			return
		}
		if !c.trySend(data) {
			h.logger.Warn("客户端消费过慢，断开连接", zap.String("client_id", c.id))
			h.dropClient(c)
		}
	})
}

// BroadcastStateUpdate 向会话房间广播状态快照
func (h *Hub) BroadcastStateUpdate(sess *types.ConversationSession) {
	h.broadcast(RoomConversation(sess.ID), newEvent(EventStateUpdate, StateUpdatePayload{Session: sess}))
}

// BroadcastSwitchEvent 向会话房间广播切换完成事件
func (h *Hub) BroadcastSwitchEvent(conversationID string, direction types.SwitchDirection, newMode types.Mode, reason string) {
	h.broadcast(RoomConversation(conversationID), newEvent(EventSwitchEvent, SwitchEventPayload{
		ConversationID: conversationID,
		Direction:      direction,
		NewMode:        newMode,
		Reason:         reason,
	}))
}

// BroadcastTranscriptEntry 向会话房间广播一条转写追加
func (h *Hub) BroadcastTranscriptEntry(conversationID string, entry types.TranscriptEntry) {
	h.broadcast(RoomConversation(conversationID), newEvent(EventTranscriptUpdate, TranscriptUpdatePayload{
		ConversationID: conversationID,
		Entry:          entry,
	}))
}

// BroadcastCallEnd 向会话房间广播通话结束
func (h *Hub) BroadcastCallEnd(conversationID string) {
	h.broadcast(RoomConversation(conversationID), newEvent(EventCallEnd, CallEndPayload{ConversationID: conversationID}))
}

// BroadcastQueueSnapshot 向 queue 房间广播排队列表
func (h *Hub) BroadcastQueueSnapshot(t EventType, entries []types.QueueEntry) {
	h.broadcast(RoomQueue, newEvent(t, QueuePayload{Entries: entries}))
}

// BroadcastQueuePreview 向 queue 房间广播消息预览
func (h *Hub) BroadcastQueuePreview(conversationID, preview string) {
	h.broadcast(RoomQueue, newEvent(EventQueueMessagePreview, QueuePreviewPayload{
		ConversationID: conversationID,
		Preview:        preview,
	}))
}

// BroadcastMetrics 向 metrics 房间广播聚合计数
func (h *Hub) BroadcastMetrics(payload MetricsPayload) {
	h.broadcast(RoomMetrics, newEvent(EventMetricsUpdate, payload))
}

// =============================================================================
// 🌐 WebSocket 接入
// =============================================================================

// ServeWS 升级 HTTP 连接并接管客户端生命周期
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "gateway is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket 升级失败", zap.Error(err))
		return
	}
	conn.SetReadLimit(int64(h.cfg.MaxMessageBytes))

	c := newClient(h, conn, h.logger)
	if h.collector != nil {
		h.collector.ClientConnected()
	}
	h.logger.Info("客户端接入", zap.String("client_id", c.id))

	go c.writePump()
	c.readPump(r.Context())

	h.Unregister(c)
	if h.collector != nil {
		h.collector.ClientDisconnected()
	}
	h.logger.Info("客户端断开", zap.String("client_id", c.id))
}
