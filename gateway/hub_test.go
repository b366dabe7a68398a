package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/gateway"
	"github.com/BaSui01/handoff/session"
	"github.com/BaSui01/handoff/types"
)

// --- Helpers ---

// stubSwitcher 返回预置结果并记录调用
type stubSwitcher struct {
	mu     sync.Mutex
	result types.SwitchResult
	calls  []string
}

func (s *stubSwitcher) ExecuteSwitch(_ context.Context, conversationID string, _ types.SwitchDirection, _ string) types.SwitchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, conversationID)
	return s.result
}

type hubFixture struct {
	hub      *gateway.Hub
	store    *session.Store
	switcher *stubSwitcher
	srv      *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := session.NewStoreWithClient(client, 2*time.Hour, zap.NewNop())
	switcher := &stubSwitcher{result: types.SwitchResult{Success: true, NewMode: types.ModeHumanRep, Timestamp: time.Now()}}

	cfg := config.GatewayConfig{
		ClientBuffer:    64,
		MaxMessageBytes: 1 << 20,
		WriteTimeout:    5 * time.Second,
	}
	hub := gateway.NewHub(cfg, 5*time.Second, store, switcher, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	return &hubFixture{hub: hub, store: store, switcher: switcher, srv: srv}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func (f *hubFixture) seedSession(t *testing.T, id string, mode types.Mode, entries []string) {
	t.Helper()
	sess := types.NewConversationSession(id, types.ChannelChat, types.StatusActive)
	sess.Mode = mode
	for _, e := range entries {
		sess.Transcript = append(sess.Transcript, types.TranscriptEntry{
			Speaker: types.SpeakerCustomer, Text: e, Timestamp: time.Now().UTC(),
		})
	}
	require.NoError(t, f.store.Create(context.Background(), sess))
}

func sendCommand(t *testing.T, conn *websocket.Conn, command string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"command": command, "data": data})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, raw))
}

type eventFrame struct {
	Type gateway.EventType `json:"type"`
	Data json.RawMessage   `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) eventFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame eventFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func assertNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, raw, err := conn.Read(ctx)
	require.Error(t, err, "unexpected event: %s", string(raw))
}

// joinAndWaitHistory 加入房间并等待私有历史回放，确保成员变更已生效
func joinAndWaitHistory(t *testing.T, conn *websocket.Conn, conversationID string) eventFrame {
	t.Helper()
	sendCommand(t, conn, "join", map[string]string{"conversation_id": conversationID})
	frame := readEvent(t, conn)
	require.Equal(t, gateway.EventSessionHistory, frame.Type)
	return frame
}

// --- Tests ---

func TestHub_JoinReplaysHistoryPrivately(t *testing.T) {
	f := newHubFixture(t)
	f.seedSession(t, "conv-1", types.ModeAIAgent, []string{"hello", "I need help"})

	a := f.dial(t)
	b := f.dial(t)
	joinAndWaitHistory(t, b, "conv-other")

	frame := joinAndWaitHistory(t, a, "conv-1")

	var payload gateway.SessionHistoryPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	require.True(t, payload.Found)
	require.NotNil(t, payload.Session)
	assert.Equal(t, "conv-1", payload.Session.ID)
	assert.Len(t, payload.Session.Transcript, 2)

	// 历史只回放给加入方
	assertNoEvent(t, b)
}

func TestHub_JoinUnknownSession(t *testing.T) {
	f := newHubFixture(t)

	a := f.dial(t)
	frame := joinAndWaitHistory(t, a, "nope")

	var payload gateway.SessionHistoryPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.False(t, payload.Found)
	assert.Nil(t, payload.Session)
}

func TestHub_BroadcastOrderPreserved(t *testing.T) {
	f := newHubFixture(t)
	f.seedSession(t, "conv-2", types.ModeAIAgent, nil)

	a := f.dial(t)
	joinAndWaitHistory(t, a, "conv-2")

	for _, txt := range []string{"one", "two", "three"} {
		f.hub.BroadcastTranscriptEntry("conv-2", types.TranscriptEntry{
			Speaker: types.SpeakerAI, Text: txt, Timestamp: time.Now().UTC(),
		})
	}

	var got []string
	for i := 0; i < 3; i++ {
		frame := readEvent(t, a)
		require.Equal(t, gateway.EventTranscriptUpdate, frame.Type)
		var payload gateway.TranscriptUpdatePayload
		require.NoError(t, json.Unmarshal(frame.Data, &payload))
		got = append(got, payload.Entry.Text)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestHub_BroadcastOnlyToRoomMembers(t *testing.T) {
	f := newHubFixture(t)
	f.seedSession(t, "conv-3", types.ModeAIAgent, nil)
	f.seedSession(t, "conv-4", types.ModeAIAgent, nil)

	a := f.dial(t)
	b := f.dial(t)
	joinAndWaitHistory(t, a, "conv-3")
	joinAndWaitHistory(t, b, "conv-4")

	f.hub.BroadcastCallEnd("conv-3")

	frame := readEvent(t, a)
	assert.Equal(t, gateway.EventCallEnd, frame.Type)
	assertNoEvent(t, b)
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	f := newHubFixture(t)
	f.seedSession(t, "conv-5", types.ModeAIAgent, nil)

	a := f.dial(t)
	joinAndWaitHistory(t, a, "conv-5")
	sendCommand(t, a, "leave", map[string]string{"conversation_id": "conv-5"})
	// 用另一个房间的 join 回执确认 leave 已处理
	joinAndWaitHistory(t, a, "conv-sync")

	f.hub.BroadcastCallEnd("conv-5")
	assertNoEvent(t, a)
}

func TestHub_RequestSwitchFailurePrivate(t *testing.T) {
	f := newHubFixture(t)
	f.seedSession(t, "conv-6", types.ModeAIAgent, nil)
	f.switcher.result = types.SwitchResult{
		Success:   false,
		Timestamp: time.Now(),
		Error:     types.NewError(types.ErrNotActive, "会话状态为 ON_HOLD，仅 ACTIVE 可切换"),
	}

	a := f.dial(t)
	b := f.dial(t)
	joinAndWaitHistory(t, a, "conv-6")
	joinAndWaitHistory(t, b, "conv-6")

	sendCommand(t, a, "request_switch", map[string]string{
		"conversation_id": "conv-6",
		"direction":       "AI_TO_HUMAN",
	})

	frame := readEvent(t, a)
	require.Equal(t, gateway.EventSwitchError, frame.Type)
	var payload gateway.SwitchErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, types.ErrNotActive, payload.Code)

	// 失败不通知房间其他订阅者
	assertNoEvent(t, b)
}

func TestHub_RequestSwitchSuccessDelegates(t *testing.T) {
	f := newHubFixture(t)
	f.seedSession(t, "conv-7", types.ModeAIAgent, nil)

	a := f.dial(t)
	joinAndWaitHistory(t, a, "conv-7")

	sendCommand(t, a, "request_switch", map[string]string{
		"conversation_id": "conv-7",
		"direction":       "AI_TO_HUMAN",
		"reason":          "dashboard click",
	})

	// 成功路径没有私有回执（广播由编排器负责）
	assertNoEvent(t, a)
	f.switcher.mu.Lock()
	defer f.switcher.mu.Unlock()
	assert.Equal(t, []string{"conv-7"}, f.switcher.calls)
}

func TestHub_HumanReplyRejectedInAIMode(t *testing.T) {
	f := newHubFixture(t)
	f.seedSession(t, "conv-8", types.ModeAIAgent, nil)

	a := f.dial(t)
	b := f.dial(t)
	joinAndWaitHistory(t, a, "conv-8")
	joinAndWaitHistory(t, b, "conv-8")

	sendCommand(t, a, "human_reply", map[string]string{
		"conversation_id": "conv-8",
		"text":            "let me take over",
	})

	frame := readEvent(t, a)
	require.Equal(t, gateway.EventSwitchError, frame.Type)
	var payload gateway.SwitchErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, types.ErrWrongMode, payload.Code)

	// 转写未被修改，其他订阅者无感知
	sess, found := f.store.Get(context.Background(), "conv-8")
	require.True(t, found)
	assert.Empty(t, sess.Transcript)
	assertNoEvent(t, b)
}

func TestHub_HumanReplyAppendsAndBroadcasts(t *testing.T) {
	f := newHubFixture(t)
	f.seedSession(t, "conv-9", types.ModeHumanRep, nil)

	a := f.dial(t)
	b := f.dial(t)
	joinAndWaitHistory(t, a, "conv-9")
	joinAndWaitHistory(t, b, "conv-9")

	sendCommand(t, a, "human_reply", map[string]string{
		"conversation_id": "conv-9",
		"text":            "hi, how can I help?",
	})

	for _, conn := range []*websocket.Conn{a, b} {
		frame := readEvent(t, conn)
		require.Equal(t, gateway.EventTranscriptUpdate, frame.Type)
		var payload gateway.TranscriptUpdatePayload
		require.NoError(t, json.Unmarshal(frame.Data, &payload))
		assert.Equal(t, types.SpeakerHuman, payload.Entry.Speaker)
		assert.Equal(t, "hi, how can I help?", payload.Entry.Text)
	}

	sess, found := f.store.Get(context.Background(), "conv-9")
	require.True(t, found)
	require.Len(t, sess.Transcript, 1)
	assert.Equal(t, types.SpeakerHuman, sess.Transcript[0].Speaker)
}

func TestHub_FragmentMapsRoles(t *testing.T) {
	f := newHubFixture(t)
	f.seedSession(t, "conv-10", types.ModeAIAgent, nil)

	a := f.dial(t)
	joinAndWaitHistory(t, a, "conv-10")

	sendCommand(t, a, "fragment", map[string]string{
		"conversation_id": "conv-10",
		"role":            "customer",
		"text":            "my order is missing",
	})

	frame := readEvent(t, a)
	require.Equal(t, gateway.EventTranscriptUpdate, frame.Type)
	var payload gateway.TranscriptUpdatePayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, types.SpeakerCustomer, payload.Entry.Speaker)

	sess, found := f.store.Get(context.Background(), "conv-10")
	require.True(t, found)
	require.Len(t, sess.Transcript, 1)
	assert.Equal(t, types.SpeakerCustomer, sess.Transcript[0].Speaker)
}

func TestHub_QueueAndMetricsTopics(t *testing.T) {
	f := newHubFixture(t)

	a := f.dial(t)
	b := f.dial(t)
	sendCommand(t, a, "subscribe", map[string]string{"topic": "queue"})
	joinAndWaitHistory(t, a, "conv-sync-a")
	sendCommand(t, b, "subscribe", map[string]string{"topic": "metrics"})
	joinAndWaitHistory(t, b, "conv-sync-b")

	f.hub.BroadcastQueueSnapshot(gateway.EventQueueAdd, []types.QueueEntry{
		{ID: "conv-11", Channel: types.ChannelChat},
	})
	f.hub.BroadcastMetrics(gateway.MetricsPayload{ActiveConversations: 3, InAIMode: 2, InHumanMode: 1})

	frame := readEvent(t, a)
	require.Equal(t, gateway.EventQueueAdd, frame.Type)
	var queuePayload gateway.QueuePayload
	require.NoError(t, json.Unmarshal(frame.Data, &queuePayload))
	require.Len(t, queuePayload.Entries, 1)
	assert.Equal(t, "conv-11", queuePayload.Entries[0].ID)

	frame = readEvent(t, b)
	require.Equal(t, gateway.EventMetricsUpdate, frame.Type)
	var metricsPayload gateway.MetricsPayload
	require.NoError(t, json.Unmarshal(frame.Data, &metricsPayload))
	assert.Equal(t, 3, metricsPayload.ActiveConversations)

	// 互不串台
	assertNoEvent(t, a)
	assertNoEvent(t, b)
}

func TestHub_MalformedCommandGetsPrivateError(t *testing.T) {
	f := newHubFixture(t)

	a := f.dial(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Write(ctx, websocket.MessageText, []byte(`{"command":"dance"}`)))

	frame := readEvent(t, a)
	require.Equal(t, gateway.EventSwitchError, frame.Type)
	var payload gateway.SwitchErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, types.ErrInvalidRequest, payload.Code)
}
