// 切换编排器与网关协作方的测试模拟实现。
//
// 支持错误注入与调用记录。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/handoff/ledger"
	"github.com/BaSui01/handoff/orchestrator"
	"github.com/BaSui01/handoff/types"
)

// --- MockTelephony ---

// TelephonyCall 记录单次电话信令调用
type TelephonyCall struct {
	Op   string // "speak" | "mute" | "unmute" | "end_call"
	Ref  string // connectionRef / participantRef / callRef
	Text string // 仅 speak
}

// MockTelephony 是 Telephony 协作方的模拟实现
type MockTelephony struct {
	mu sync.Mutex

	// 错误注入：按操作名注入
	errs map[string]error

	calls []TelephonyCall
}

// NewMockTelephony 创建新的 MockTelephony
func NewMockTelephony() *MockTelephony {
	return &MockTelephony{errs: make(map[string]error)}
}

// WithError 为指定操作注入错误
func (m *MockTelephony) WithError(op string, err error) *MockTelephony {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
	return m
}

func (m *MockTelephony) record(op, ref, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, TelephonyCall{Op: op, Ref: ref, Text: text})
	return m.errs[op]
}

func (m *MockTelephony) Speak(_ context.Context, connectionRef, text, _ string) error {
	return m.record("speak", connectionRef, text)
}

func (m *MockTelephony) MuteParticipant(_ context.Context, _, participantRef string) error {
	return m.record("mute", participantRef, "")
}

func (m *MockTelephony) UnmuteParticipant(_ context.Context, _, participantRef string) error {
	return m.record("unmute", participantRef, "")
}

func (m *MockTelephony) EndCall(_ context.Context, callRef string) error {
	return m.record("end_call", callRef, "")
}

// Calls 返回调用记录的副本
func (m *MockTelephony) Calls() []TelephonyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TelephonyCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsOf 返回指定操作的调用次数
func (m *MockTelephony) CallsOf(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// --- MockAssistant ---

// MockAssistant 是自动助手协作方的模拟实现
type MockAssistant struct {
	mu sync.Mutex

	reply *orchestrator.AssistantReply
	err   error

	calls int
}

// NewMockAssistant 创建新的 MockAssistant
func NewMockAssistant() *MockAssistant {
	return &MockAssistant{reply: &orchestrator.AssistantReply{Message: "mock reply"}}
}

// WithReply 设置固定应答
func (m *MockAssistant) WithReply(reply *orchestrator.AssistantReply) *MockAssistant {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
	return m
}

// WithError 注入错误
func (m *MockAssistant) WithError(err error) *MockAssistant {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockAssistant) Respond(_ context.Context, _ string, _ []types.TranscriptEntry) (*orchestrator.AssistantReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.reply, nil
}

// Calls 返回调用次数
func (m *MockAssistant) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- MockLedger ---

// StatusUpdate 记录一次通话终态更新
type StatusUpdate struct {
	ConversationID  string
	Status          types.Status
	FinalTranscript []types.TranscriptEntry
}

// MockLedger 是审计账本的模拟实现
type MockLedger struct {
	mu sync.Mutex

	switchRecords []types.SwitchRecord
	callRecords   []*types.ConversationSession
	statusUpdates []StatusUpdate
	callStatus    *ledger.CallStatus

	appendErr error
	findErr   error
}

// NewMockLedger 创建新的 MockLedger
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

// WithCallStatus 设置 FindCallStatus 的返回值
func (m *MockLedger) WithCallStatus(status *ledger.CallStatus) *MockLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callStatus = status
	return m
}

// WithAppendError 为 AppendSwitchRecord 注入错误
func (m *MockLedger) WithAppendError(err error) *MockLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
	return m
}

// WithFindError 为 FindCallStatus 注入错误
func (m *MockLedger) WithFindError(err error) *MockLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findErr = err
	return m
}

func (m *MockLedger) AppendSwitchRecord(_ context.Context, rec types.SwitchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.switchRecords = append(m.switchRecords, rec)
	return nil
}

func (m *MockLedger) FindCallStatus(_ context.Context, _ string) (*ledger.CallStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.callStatus, nil
}

func (m *MockLedger) AppendCallRecord(_ context.Context, sess *types.ConversationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.callRecords = append(m.callRecords, sess)
	return nil
}

func (m *MockLedger) UpdateCallStatus(_ context.Context, conversationID string, status types.Status, finalTranscript []types.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.statusUpdates = append(m.statusUpdates, StatusUpdate{
		ConversationID:  conversationID,
		Status:          status,
		FinalTranscript: finalTranscript,
	})
	return nil
}

// CallRecords 返回已写入通话记录的副本
func (m *MockLedger) CallRecords() []*types.ConversationSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.ConversationSession, len(m.callRecords))
	copy(out, m.callRecords)
	return out
}

// StatusUpdates 返回已写入终态更新的副本
func (m *MockLedger) StatusUpdates() []StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StatusUpdate, len(m.statusUpdates))
	copy(out, m.statusUpdates)
	return out
}

// SwitchRecords 返回已写入记录的副本
func (m *MockLedger) SwitchRecords() []types.SwitchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.SwitchRecord, len(m.switchRecords))
	copy(out, m.switchRecords)
	return out
}

// --- MockSwitcher ---

// SwitchCall 记录单次切换请求
type SwitchCall struct {
	ConversationID string
	Direction      types.SwitchDirection
	Reason         string
}

// MockSwitcher 是编排器切换入口的模拟实现
type MockSwitcher struct {
	mu     sync.Mutex
	result types.SwitchResult
	calls  []SwitchCall
}

// NewMockSwitcher 创建新的 MockSwitcher，默认返回成功
func NewMockSwitcher() *MockSwitcher {
	return &MockSwitcher{result: types.SwitchResult{Success: true, NewMode: types.ModeHumanRep}}
}

// WithResult 设置固定返回值
func (m *MockSwitcher) WithResult(res types.SwitchResult) *MockSwitcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = res
	return m
}

func (m *MockSwitcher) ExecuteSwitch(_ context.Context, conversationID string, direction types.SwitchDirection, reason string) types.SwitchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SwitchCall{ConversationID: conversationID, Direction: direction, Reason: reason})
	return m.result
}

// Calls 返回切换请求记录的副本
func (m *MockSwitcher) Calls() []SwitchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SwitchCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// --- MockBroadcaster ---

// BroadcastEvent 记录单次广播
type BroadcastEvent struct {
	Kind           string // "state_update" | "switch" | "transcript" | "call_end"
	ConversationID string
	NewMode        types.Mode
	Direction      types.SwitchDirection
	Reason         string
	Entry          *types.TranscriptEntry
}

// MockBroadcaster 是实时广播出口的模拟实现
type MockBroadcaster struct {
	mu     sync.Mutex
	events []BroadcastEvent
}

// NewMockBroadcaster 创建新的 MockBroadcaster
func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) BroadcastStateUpdate(sess *types.ConversationSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, BroadcastEvent{
		Kind:           "state_update",
		ConversationID: sess.ID,
		NewMode:        sess.Mode,
	})
}

func (m *MockBroadcaster) BroadcastSwitchEvent(conversationID string, direction types.SwitchDirection, newMode types.Mode, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, BroadcastEvent{
		Kind:           "switch",
		ConversationID: conversationID,
		NewMode:        newMode,
		Direction:      direction,
		Reason:         reason,
	})
}

func (m *MockBroadcaster) BroadcastTranscriptEntry(conversationID string, entry types.TranscriptEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, BroadcastEvent{
		Kind:           "transcript",
		ConversationID: conversationID,
		Entry:          &entry,
	})
}

func (m *MockBroadcaster) BroadcastCallEnd(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, BroadcastEvent{
		Kind:           "call_end",
		ConversationID: conversationID,
	})
}

// Events 返回广播记录的副本
func (m *MockBroadcaster) Events() []BroadcastEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BroadcastEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOf 返回指定类型的广播记录
func (m *MockBroadcaster) EventsOf(kind string) []BroadcastEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BroadcastEvent
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
