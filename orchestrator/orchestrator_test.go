package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/ledger"
	"github.com/BaSui01/handoff/orchestrator"
	"github.com/BaSui01/handoff/session"
	"github.com/BaSui01/handoff/testutil/mocks"
	"github.com/BaSui01/handoff/types"
)

func testTelephonyConfig() config.TelephonyConfig {
	return config.TelephonyConfig{
		BaseURL:         "http://localhost:0",
		Timeout:         2 * time.Second,
		TransitionVoice: "female",
	}
}

type fixture struct {
	store       *session.Store
	ledger      *mocks.MockLedger
	telephony   *mocks.MockTelephony
	broadcaster *mocks.MockBroadcaster
	orch        *orchestrator.Orchestrator
	mr          *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		store:       session.NewStoreWithClient(client, 2*time.Hour, zap.NewNop()),
		ledger:      mocks.NewMockLedger(),
		telephony:   mocks.NewMockTelephony(),
		broadcaster: mocks.NewMockBroadcaster(),
		mr:          mr,
	}
	f.orch = orchestrator.New(f.store, f.ledger, f.telephony, testTelephonyConfig(), zap.NewNop())
	f.orch.SetBroadcaster(f.broadcaster)
	return f
}

func (f *fixture) seedSession(t *testing.T, id string, mode types.Mode, status types.Status, meta map[string]string) {
	t.Helper()
	sess := types.NewConversationSession(id, types.ChannelVoice, status)
	sess.Mode = mode
	for k, v := range meta {
		sess.Metadata[k] = v
	}
	require.NoError(t, f.store.Create(context.Background(), sess))
}

func TestExecuteSwitch_AIToHuman(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "conv-1", types.ModeAIAgent, types.StatusActive, map[string]string{
		orchestrator.MetaAssistantCallID: "leg-ai",
		orchestrator.MetaCallControlID:   "cc-1",
	})

	res := f.orch.ExecuteSwitch(context.Background(), "conv-1", types.SwitchAIToHuman, "customer asked for a person")

	require.True(t, res.Success)
	assert.Equal(t, types.ModeHumanRep, res.NewMode)
	assert.Nil(t, res.Error)
	assert.False(t, res.Timestamp.IsZero())

	// 会话模式与切换计数已更新
	sess, found := f.store.Get(context.Background(), "conv-1")
	require.True(t, found)
	assert.Equal(t, types.ModeHumanRep, sess.Mode)
	assert.Equal(t, 1, sess.SwitchCount)

	// 助手通话腿被挂断，客户听到过渡提示
	assert.Equal(t, 1, f.telephony.CallsOf("end_call"))
	assert.Equal(t, 1, f.telephony.CallsOf("speak"))

	// 审计记录
	recs := f.ledger.SwitchRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, "conv-1", recs[0].ConversationID)
	assert.Equal(t, types.SwitchAIToHuman, recs[0].Direction)
	assert.Equal(t, "customer asked for a person", recs[0].Reason)

	// 房间广播：状态更新 + 切换事件
	assert.Len(t, f.broadcaster.EventsOf("state_update"), 1)
	switches := f.broadcaster.EventsOf("switch")
	require.Len(t, switches, 1)
	assert.Equal(t, types.ModeHumanRep, switches[0].NewMode)
}

func TestExecuteSwitch_HumanToAI(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "conv-2", types.ModeHumanRep, types.StatusActive, map[string]string{
		orchestrator.MetaCallControlID:         "cc-2",
		orchestrator.MetaConferenceID:          "conf-1",
		orchestrator.MetaHumanParticipantID:    "part-1",
	})

	res := f.orch.ExecuteSwitch(context.Background(), "conv-2", types.SwitchHumanToAI, "issue resolved")

	require.True(t, res.Success)
	assert.Equal(t, types.ModeAIAgent, res.NewMode)
	assert.Equal(t, 1, f.telephony.CallsOf("speak"))
	assert.Equal(t, 1, f.telephony.CallsOf("mute"))
	assert.Equal(t, 0, f.telephony.CallsOf("end_call"))
}

func TestExecuteSwitch_NotFound(t *testing.T) {
	f := newFixture(t)

	res := f.orch.ExecuteSwitch(context.Background(), "missing", types.SwitchAIToHuman, "")

	require.False(t, res.Success)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(res.Error))
	// 校验失败：零副作用、零审计、零广播
	assert.Empty(t, f.telephony.Calls())
	assert.Empty(t, f.ledger.SwitchRecords())
	assert.Empty(t, f.broadcaster.Events())
}

func TestExecuteSwitch_AlreadyInMode(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "conv-3", types.ModeHumanRep, types.StatusActive, nil)

	res := f.orch.ExecuteSwitch(context.Background(), "conv-3", types.SwitchAIToHuman, "")

	require.False(t, res.Success)
	assert.Equal(t, types.ErrAlreadyInMode, types.GetErrorCode(res.Error))
	assert.Empty(t, f.telephony.Calls())
	assert.Empty(t, f.ledger.SwitchRecords())

	// 幂等：会话不受影响
	sess, found := f.store.Get(context.Background(), "conv-3")
	require.True(t, found)
	assert.Equal(t, 0, sess.SwitchCount)
}

func TestExecuteSwitch_NotActive(t *testing.T) {
	f := newFixture(t)
	for _, status := range []types.Status{types.StatusRinging, types.StatusOnHold, types.StatusEnded} {
		id := "conv-" + string(status)
		f.seedSession(t, id, types.ModeAIAgent, status, nil)

		res := f.orch.ExecuteSwitch(context.Background(), id, types.SwitchAIToHuman, "")

		require.False(t, res.Success, "status %s", status)
		assert.Equal(t, types.ErrNotActive, types.GetErrorCode(res.Error))
	}
	assert.Empty(t, f.telephony.Calls())
}

func TestExecuteSwitch_TelephonyFailureSwallowed(t *testing.T) {
	f := newFixture(t)
	f.telephony.WithError("end_call", errors.New("carrier 502")).
		WithError("speak", errors.New("carrier 502"))
	f.seedSession(t, "conv-4", types.ModeAIAgent, types.StatusActive, map[string]string{
		orchestrator.MetaAssistantCallID: "leg-ai",
		orchestrator.MetaCallControlID:   "cc-4",
	})

	res := f.orch.ExecuteSwitch(context.Background(), "conv-4", types.SwitchAIToHuman, "")

	// 电话信令失败不得中止切换
	require.True(t, res.Success)
	sess, found := f.store.Get(context.Background(), "conv-4")
	require.True(t, found)
	assert.Equal(t, types.ModeHumanRep, sess.Mode)
}

func TestExecuteSwitch_LedgerFailureSwallowed(t *testing.T) {
	f := newFixture(t)
	f.ledger.WithAppendError(errors.New("db down"))
	f.seedSession(t, "conv-5", types.ModeAIAgent, types.StatusActive, nil)

	res := f.orch.ExecuteSwitch(context.Background(), "conv-5", types.SwitchAIToHuman, "")

	require.True(t, res.Success)
	// 切换已可观察，广播照常发出
	assert.Len(t, f.broadcaster.EventsOf("switch"), 1)
}

func TestExecuteSwitch_StoreGoneIsInternal(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "conv-6", types.ModeAIAgent, types.StatusActive, nil)
	f.mr.Close()

	res := f.orch.ExecuteSwitch(context.Background(), "conv-6", types.SwitchAIToHuman, "")

	// 读取路径软失败为 absent，因此表现为 NOT_FOUND
	require.False(t, res.Success)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(res.Error))
}

func TestExecuteSwitch_NoMetadataNoSignaling(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "conv-7", types.ModeAIAgent, types.StatusActive, nil)

	res := f.orch.ExecuteSwitch(context.Background(), "conv-7", types.SwitchAIToHuman, "")

	require.True(t, res.Success)
	assert.Empty(t, f.telephony.Calls())
}

func TestExecuteSwitch_Closed(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "conv-8", types.ModeAIAgent, types.StatusActive, nil)
	require.NoError(t, f.orch.Close())

	res := f.orch.ExecuteSwitch(context.Background(), "conv-8", types.SwitchAIToHuman, "")

	require.False(t, res.Success)
	assert.Equal(t, types.ErrInternal, types.GetErrorCode(res.Error))
}

func TestCanSwitch_Allowed(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "conv-9", types.ModeAIAgent, types.StatusActive, nil)

	res := f.orch.CanSwitch(context.Background(), "conv-9", types.SwitchAIToHuman)

	assert.True(t, res.Allowed)
	assert.Empty(t, res.Reason)
}

func TestCanSwitch_AlreadyInMode(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "conv-10", types.ModeHumanRep, types.StatusActive, nil)

	res := f.orch.CanSwitch(context.Background(), "conv-10", types.SwitchAIToHuman)

	assert.False(t, res.Allowed)
	assert.Equal(t, types.ErrAlreadyInMode, res.Reason)
}

func TestCanSwitch_NotActive(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "conv-11", types.ModeAIAgent, types.StatusOnHold, nil)

	res := f.orch.CanSwitch(context.Background(), "conv-11", types.SwitchAIToHuman)

	assert.False(t, res.Allowed)
	assert.Equal(t, types.ErrNotActive, res.Reason)
}

func TestCanSwitch_FallbackCallEnded(t *testing.T) {
	f := newFixture(t)
	// 存储未命中，账本显示通话已结束
	f.ledger.WithCallStatus(&ledger.CallStatus{Status: types.StatusEnded, Mode: types.ModeHumanRep})

	res := f.orch.CanSwitch(context.Background(), "gone", types.SwitchHumanToAI)

	assert.False(t, res.Allowed)
	assert.Equal(t, types.ErrCallEnded, res.Reason)
}

func TestCanSwitch_FallbackSessionExpired(t *testing.T) {
	f := newFixture(t)
	// 存储未命中，账本显示通话仍在进行 → 仅仅是会话过期
	f.ledger.WithCallStatus(&ledger.CallStatus{Status: types.StatusActive, Mode: types.ModeAIAgent})

	res := f.orch.CanSwitch(context.Background(), "expired", types.SwitchAIToHuman)

	assert.False(t, res.Allowed)
	assert.Equal(t, types.ErrSessionExpired, res.Reason)
}

func TestCanSwitch_UnknownEverywhere(t *testing.T) {
	f := newFixture(t)

	res := f.orch.CanSwitch(context.Background(), "never-existed", types.SwitchAIToHuman)

	assert.False(t, res.Allowed)
	assert.Equal(t, types.ErrNotFound, res.Reason)
}

func TestCanSwitch_LedgerErrorIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.ledger.WithFindError(errors.New("db down"))

	res := f.orch.CanSwitch(context.Background(), "gone", types.SwitchAIToHuman)

	assert.False(t, res.Allowed)
	assert.Equal(t, types.ErrNotFound, res.Reason)
}
