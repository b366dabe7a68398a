// Package types provides core types used across the handoff coordination core.
// This package has ZERO dependencies on other handoff packages to avoid circular imports.
// All other packages should import types from here.
package types

import (
	"time"
)

// Mode identifies which party is currently authoritative for responding
// to the customer.
type Mode string

const (
	ModeAIAgent  Mode = "AI_AGENT"
	ModeHumanRep Mode = "HUMAN_REP"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAIAgent || m == ModeHumanRep
}

// Status represents the lifecycle state of a conversation.
// StatusEnded is terminal: no further mutation is permitted once reached.
type Status string

const (
	StatusRinging Status = "RINGING"
	StatusActive  Status = "ACTIVE"
	StatusOnHold  Status = "ON_HOLD"
	StatusEnded   Status = "ENDED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusRinging, StatusActive, StatusOnHold, StatusEnded:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusEnded
}

// Speaker identifies the author of a transcript entry.
type Speaker string

const (
	SpeakerAI       Speaker = "AI"
	SpeakerHuman    Speaker = "HUMAN"
	SpeakerCustomer Speaker = "CUSTOMER"
)

// Channel identifies the medium of a conversation.
type Channel string

const (
	ChannelVoice Channel = "VOICE"
	ChannelChat  Channel = "CHAT"
)

// SwitchDirection identifies a mode transition. Every switch is exactly one
// of the two directions; there are no intermediate states.
type SwitchDirection string

const (
	SwitchAIToHuman SwitchDirection = "AI_TO_HUMAN"
	SwitchHumanToAI SwitchDirection = "HUMAN_TO_AI"
)

// Valid reports whether d is a known direction.
func (d SwitchDirection) Valid() bool {
	return d == SwitchAIToHuman || d == SwitchHumanToAI
}

// TargetMode returns the mode a conversation is in after a switch in
// direction d completes.
func (d SwitchDirection) TargetMode() Mode {
	if d == SwitchAIToHuman {
		return ModeHumanRep
	}
	return ModeAIAgent
}

// SourceMode returns the mode a conversation must be in for a switch in
// direction d to be legal.
func (d SwitchDirection) SourceMode() Mode {
	if d == SwitchAIToHuman {
		return ModeAIAgent
	}
	return ModeHumanRep
}

// TranscriptEntry is a single utterance in a conversation. Entries are
// immutable once appended; insertion order is meaningful and preserved.
// Timestamps are expected to be monotonically increasing within a session
// but this is not enforced.
type TranscriptEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationSession is the runtime state of one customer interaction
// (call or chat), from first contact to termination. It is stored in the
// TTL-bound session store; the store copy is the single source of truth
// for "what mode is this conversation in right now".
type ConversationSession struct {
	ID          string            `json:"id"`
	CustomerRef string            `json:"customer_ref,omitempty"`
	Channel     Channel           `json:"channel"`
	Mode        Mode              `json:"mode"`
	Status      Status            `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	Transcript  []TranscriptEntry `json:"transcript"`
	SwitchCount int               `json:"switch_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewConversationSession creates a session in the initial state for a
// first inbound customer contact.
func NewConversationSession(id string, channel Channel, status Status) *ConversationSession {
	return &ConversationSession{
		ID:        id,
		Channel:   channel,
		Mode:      ModeAIAgent,
		Status:    status,
		StartedAt: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
}

// LastEntry returns the most recent transcript entry, or nil if the
// transcript is empty.
func (s *ConversationSession) LastEntry() *TranscriptEntry {
	if len(s.Transcript) == 0 {
		return nil
	}
	return &s.Transcript[len(s.Transcript)-1]
}

// SessionPatch is a shallow partial update applied by Store.Update.
// Nil fields are left untouched.
type SessionPatch struct {
	CustomerRef *string           `json:"customer_ref,omitempty"`
	Mode        *Mode             `json:"mode,omitempty"`
	Status      *Status           `json:"status,omitempty"`
	SwitchCount *int              `json:"switch_count,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"` // merged key-by-key
}

// SwitchRecord is the ledger's audit row for one successful switch.
// Failed attempts are never recorded.
type SwitchRecord struct {
	ConversationID string          `json:"conversation_id"`
	Direction      SwitchDirection `json:"direction"`
	Reason         string          `json:"reason"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// SwitchResult is the synchronous outcome of ExecuteSwitch.
type SwitchResult struct {
	Success   bool      `json:"success"`
	NewMode   Mode      `json:"new_mode,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Error     *Error    `json:"error,omitempty"`
}

// QueueEntry is the transient dashboard-facing projection of a waiting or
// active conversation. It is never persisted; WaitSeconds is derived and
// recomputed on a fixed interval.
type QueueEntry struct {
	ID           string    `json:"id"` // conversation id
	Channel      Channel   `json:"channel"`
	DisplayName  string    `json:"display_name"`
	WaitSeconds  int       `json:"wait_seconds"`
	Preview      string    `json:"preview,omitempty"`
	Mode         Mode      `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	AttendedFlag bool      `json:"attended"`
}
