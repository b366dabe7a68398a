package webhook_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/handoff/orchestrator"
	"github.com/BaSui01/handoff/session"
	"github.com/BaSui01/handoff/testutil/mocks"
	"github.com/BaSui01/handoff/types"
	"github.com/BaSui01/handoff/webhook"
)

type telephonyFixture struct {
	handler     *webhook.TelephonyHandler
	store       *session.Store
	switcher    *mocks.MockSwitcher
	ledger      *mocks.MockLedger
	broadcaster *mocks.MockBroadcaster
	mr          *miniredis.Miniredis
}

func newTelephonyFixture(t *testing.T) *telephonyFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &telephonyFixture{
		store:       session.NewStoreWithClient(client, 2*time.Hour, zap.NewNop()),
		switcher:    mocks.NewMockSwitcher(),
		ledger:      mocks.NewMockLedger(),
		broadcaster: mocks.NewMockBroadcaster(),
		mr:          mr,
	}
	dedup := webhook.NewDeduper(client, 24*time.Hour, zap.NewNop())
	f.handler = webhook.NewTelephonyHandler(f.store, f.switcher, f.ledger, f.broadcaster, dedup, nil, 5*time.Second, zap.NewNop())
	return f
}

func (f *telephonyFixture) post(t *testing.T, eventID, eventType, payloadJSON string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"data":{"event_type":%q,"id":%q,"payload":%s}}`, eventType, eventID, payloadJSON)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestTelephony_CallInitiated(t *testing.T) {
	f := newTelephonyFixture(t)

	rec := f.post(t, "evt-1", "call.initiated",
		`{"call_control_id":"cc-1","call_session_id":"conv-1","from":"+15550100","to":"+15550111"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	sess, found := f.store.Get(context.Background(), "conv-1")
	require.True(t, found)
	assert.Equal(t, types.ModeAIAgent, sess.Mode)
	assert.Equal(t, types.StatusRinging, sess.Status)
	assert.Equal(t, types.ChannelVoice, sess.Channel)
	assert.Equal(t, "+15550100", sess.CustomerRef)
	assert.Equal(t, "cc-1", sess.Metadata[orchestrator.MetaCallControlID])

	require.Len(t, f.ledger.CallRecords(), 1)
	assert.Len(t, f.broadcaster.EventsOf("state_update"), 1)
}

func TestTelephony_CallAnswered(t *testing.T) {
	f := newTelephonyFixture(t)
	f.post(t, "evt-1", "call.initiated", `{"call_control_id":"cc-1","call_session_id":"conv-2","from":"+1"}`)

	rec := f.post(t, "evt-2", "call.answered", `{"call_session_id":"conv-2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	sess, found := f.store.Get(context.Background(), "conv-2")
	require.True(t, found)
	assert.Equal(t, types.StatusActive, sess.Status)
	assert.Len(t, f.broadcaster.EventsOf("state_update"), 2)
}

func TestTelephony_DTMFTriggersSwitch(t *testing.T) {
	f := newTelephonyFixture(t)

	for i, digit := range []string{"0", "*"} {
		f.post(t, fmt.Sprintf("evt-%d", i), "call.dtmf.received",
			fmt.Sprintf(`{"call_session_id":"conv-3","digit":%q}`, digit))
	}

	calls := f.switcher.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, types.SwitchAIToHuman, calls[0].Direction)
	assert.Contains(t, calls[0].Reason, "DTMF 0")
	assert.Contains(t, calls[1].Reason, "DTMF *")
}

func TestTelephony_DTMFOtherDigitsIgnored(t *testing.T) {
	f := newTelephonyFixture(t)

	rec := f.post(t, "evt-1", "call.dtmf.received", `{"call_session_id":"conv-4","digit":"5"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.switcher.Calls())
}

func TestTelephony_DTMFSwitchFailureStillAcks(t *testing.T) {
	f := newTelephonyFixture(t)
	f.switcher.WithResult(types.SwitchResult{
		Success: false,
		Error:   types.NewError(types.ErrNotFound, "会话不存在"),
	})

	rec := f.post(t, "evt-1", "call.dtmf.received", `{"call_session_id":"conv-5","digit":"0"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTelephony_Hangup(t *testing.T) {
	f := newTelephonyFixture(t)
	f.post(t, "evt-1", "call.initiated", `{"call_control_id":"cc-1","call_session_id":"conv-6","from":"+1"}`)
	require.NoError(t, f.store.AppendTranscript(context.Background(), "conv-6", types.SpeakerCustomer, "hello", time.Now().UTC()))

	rec := f.post(t, "evt-2", "call.hangup", `{"call_session_id":"conv-6"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	sess, found := f.store.Get(context.Background(), "conv-6")
	require.True(t, found)
	assert.Equal(t, types.StatusEnded, sess.Status)

	updates := f.ledger.StatusUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, "conv-6", updates[0].ConversationID)
	assert.Equal(t, types.StatusEnded, updates[0].Status)
	require.Len(t, updates[0].FinalTranscript, 1)
	assert.Equal(t, "hello", updates[0].FinalTranscript[0].Text)

	assert.Len(t, f.broadcaster.EventsOf("call_end"), 1)
}

func TestTelephony_HangupAfterExpiryStillWritesLedger(t *testing.T) {
	f := newTelephonyFixture(t)
	// 会话从未入库（或已过期），终态记录照写
	rec := f.post(t, "evt-1", "call.hangup", `{"call_session_id":"conv-7"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	updates := f.ledger.StatusUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, types.StatusEnded, updates[0].Status)
	assert.Empty(t, updates[0].FinalTranscript)
	assert.Len(t, f.broadcaster.EventsOf("call_end"), 1)
}

func TestTelephony_DuplicateEventSkipped(t *testing.T) {
	f := newTelephonyFixture(t)

	payload := `{"call_control_id":"cc-1","call_session_id":"conv-8","digit":"0"}`
	rec := f.post(t, "evt-dup", "call.dtmf.received", payload)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.post(t, "evt-dup", "call.dtmf.received", payload)
	assert.Equal(t, http.StatusOK, rec.Code)

	// 重复投递不得二次触发切换
	assert.Len(t, f.switcher.Calls(), 1)
}

func TestTelephony_DedupUnavailableStillProcesses(t *testing.T) {
	f := newTelephonyFixture(t)
	f.post(t, "evt-1", "call.initiated", `{"call_control_id":"cc-1","call_session_id":"conv-9","from":"+1"}`)
	f.mr.Close()

	// Redis 宕机：去重放行，store 写入失败也必须 200 确认
	rec := f.post(t, "evt-2", "call.answered", `{"call_session_id":"conv-9"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTelephony_MalformedPayloadAcked(t *testing.T) {
	f := newTelephonyFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTelephony_MethodNotAllowed(t *testing.T) {
	f := newTelephonyFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/telephony", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTelephony_UnknownEventAcked(t *testing.T) {
	f := newTelephonyFixture(t)

	rec := f.post(t, "evt-1", "call.recording.saved", `{"call_session_id":"conv-10"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
