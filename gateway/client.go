package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 👤 网关客户端
// =============================================================================

// Client 一条 WebSocket 连接。读写各一个协程；出站事件经带缓冲的
// send 队列，防止单个慢客户端阻塞 Hub
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// rooms 仅在 Hub 的 Run 协程中访问
	rooms map[string]struct{}

	logger    *zap.Logger
	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(h *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.ClientBuffer),
		rooms:  make(map[string]struct{}),
		logger: logger.With(zap.String("client_id", id)),
		closed: make(chan struct{}),
	}
}

// trySend 非阻塞投递；队列满或客户端已关闭时返回 false
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close(websocket.StatusNormalClosure, "closing")
	})
}

// writePump 消费 send 队列并写入连接
func (c *Client) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), c.hub.cfg.WriteTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.logger.Debug("写入失败，关闭连接", zap.Error(err))
				c.close()
				return
			}
		}
	}
}

// readPump 读取并分发入站命令，连接断开后返回
func (c *Client) readPump(ctx context.Context) {
	defer c.close()
	for {
		_, raw, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		cmd, err := DecodeCommand(raw)
		if err != nil {
			if c.hub.collector != nil {
				c.hub.collector.RecordCommand("unknown", "error")
			}
			c.sendError("", types.ErrInvalidRequest, err.Error())
			continue
		}

		c.handleCommand(ctx, cmd)
	}
}

// sendError 向本客户端发送私有错误事件
func (c *Client) sendError(conversationID string, code types.ErrorCode, message string) {
	c.hub.SendPrivate(c, newEvent(EventSwitchError, SwitchErrorPayload{
		ConversationID: conversationID,
		Code:           code,
		Message:        message,
	}))
}

func (c *Client) recordCommand(cmd CommandType, status string) {
	if c.hub.collector != nil {
		c.hub.collector.RecordCommand(string(cmd), status)
	}
}

// handleCommand 单一路由表，按命令变体分发
func (c *Client) handleCommand(ctx context.Context, cmd Command) {
	opCtx, cancel := context.WithTimeout(ctx, c.hub.opTimeout)
	defer cancel()

	switch v := cmd.(type) {
	case *JoinCommand:
		c.hub.Join(c, RoomConversation(v.ConversationID))
		// 入房即回放当前会话状态，仅发给加入方
		sess, found := c.hub.store.Get(opCtx, v.ConversationID)
		c.hub.SendPrivate(c, newEvent(EventSessionHistory, SessionHistoryPayload{
			Session: sess,
			Found:   found,
		}))
		c.recordCommand(CmdJoin, "ok")

	case *LeaveCommand:
		c.hub.Leave(c, RoomConversation(v.ConversationID))
		c.recordCommand(CmdLeave, "ok")

	case *SubscribeCommand:
		c.hub.Join(c, string(v.Topic))
		c.recordCommand(CmdSubscribe, "ok")

	case *UnsubscribeCommand:
		c.hub.Leave(c, string(v.Topic))
		c.recordCommand(CmdUnsubscribe, "ok")

	case *RequestSwitchCommand:
		res := c.hub.switcher.ExecuteSwitch(opCtx, v.ConversationID, v.Direction, v.Reason)
		if !res.Success {
			code, msg := types.ErrInternal, "切换失败"
			if res.Error != nil {
				code, msg = res.Error.Code, res.Error.Message
			}
			// 失败只通知发起方，房间其他订阅者不感知
			c.sendError(v.ConversationID, code, msg)
			c.recordCommand(CmdRequestSwitch, "rejected")
			return
		}
		c.recordCommand(CmdRequestSwitch, "ok")

	case *HumanReplyCommand:
		c.handleHumanReply(opCtx, v)

	case *FragmentCommand:
		c.handleFragment(opCtx, v)
	}
}

// handleHumanReply 人工回复：仅 HUMAN_REP 模式接受，追加 HUMAN 转写并广播
func (c *Client) handleHumanReply(ctx context.Context, cmd *HumanReplyCommand) {
	sess, found := c.hub.store.Get(ctx, cmd.ConversationID)
	if !found {
		c.sendError(cmd.ConversationID, types.ErrNotFound, "会话不存在或已过期")
		c.recordCommand(CmdHumanReply, "rejected")
		return
	}
	if sess.Mode != types.ModeHumanRep {
		c.sendError(cmd.ConversationID, types.ErrWrongMode, "会话当前不在人工模式")
		c.recordCommand(CmdHumanReply, "rejected")
		return
	}

	entry := types.TranscriptEntry{
		Speaker:   types.SpeakerHuman,
		Text:      cmd.Text,
		Timestamp: time.Now().UTC(),
	}
	if err := c.hub.store.AppendTranscript(ctx, cmd.ConversationID, entry.Speaker, entry.Text, entry.Timestamp); err != nil {
		c.logger.Error("人工回复转写追加失败", zap.String("conversation_id", cmd.ConversationID), zap.Error(err))
		c.sendError(cmd.ConversationID, types.ErrInternal, "转写追加失败")
		c.recordCommand(CmdHumanReply, "error")
		return
	}
	if c.hub.collector != nil {
		c.hub.collector.RecordTranscriptAppend(string(entry.Speaker))
	}

	c.hub.BroadcastTranscriptEntry(cmd.ConversationID, entry)
	c.recordCommand(CmdHumanReply, "ok")
}

// handleFragment 客户侧转写片段：与 webhook 来源的条目同样追加并广播
func (c *Client) handleFragment(ctx context.Context, cmd *FragmentCommand) {
	speaker, err := cmd.Speaker()
	if err != nil {
		c.sendError(cmd.ConversationID, types.ErrInvalidRequest, err.Error())
		c.recordCommand(CmdFragment, "rejected")
		return
	}

	ts := time.Now().UTC()
	if cmd.Timestamp != nil {
		ts = cmd.Timestamp.UTC()
	}
	entry := types.TranscriptEntry{Speaker: speaker, Text: cmd.Text, Timestamp: ts}

	if err := c.hub.store.AppendTranscript(ctx, cmd.ConversationID, entry.Speaker, entry.Text, entry.Timestamp); err != nil {
		c.logger.Error("片段转写追加失败", zap.String("conversation_id", cmd.ConversationID), zap.Error(err))
		c.sendError(cmd.ConversationID, types.ErrInternal, "转写追加失败")
		c.recordCommand(CmdFragment, "error")
		return
	}
	if c.hub.collector != nil {
		c.hub.collector.RecordTranscriptAppend(string(speaker))
	}

	c.hub.BroadcastTranscriptEntry(cmd.ConversationID, entry)
	c.recordCommand(CmdFragment, "ok")
}
