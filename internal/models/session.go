// Package models defines core data structures for the Salom intent engine.
package models

import "time"

// SessionState is the dialogue state a session is in. A session is in
// exactly one state at any time.
type SessionState string

const (
	// StateIdle means no pending expectation; messages route through matching.
	StateIdle SessionState = "idle"
	// StateAwaitingSlot means the engine asked for a missing slot value.
	StateAwaitingSlot SessionState = "awaiting_slot"
	// StateAwaitingFollowup means a generic response was given and the next
	// message selects a followup branch by keyword.
	StateAwaitingFollowup SessionState = "awaiting_followup"
	// StateAwaitingFollowupResolution means a followup question was asked and
	// one free-form continuation resolves the branch.
	StateAwaitingFollowupResolution SessionState = "awaiting_followup_resolution"
)

// Session is the persisted conversational state for one user. It is read and
// written exactly once per request cycle; concurrent writers are detected by
// the store's version check.
type Session struct {
	UserID          string            `json:"user_id"`
	Language        string            `json:"language,omitempty"`
	State           SessionState      `json:"state"`
	PendingIntent   string            `json:"pending_intent,omitempty"`
	PendingSlot     string            `json:"pending_slot,omitempty"`
	PendingFollowup string            `json:"pending_followup,omitempty"`
	StateTurns      int               `json:"state_turns"` // turns handled since the current state was entered
	TotalTurns      int               `json:"total_turns"`
	Slots           map[string]string `json:"slots,omitempty"` // accumulated slot values for the active intent
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewSession returns a fresh idle session for the given user.
func NewSession(userID string) Session {
	return Session{
		UserID: userID,
		State:  StateIdle,
		Slots:  make(map[string]string),
	}
}

// ResetDialogue clears all pending dialogue state and returns the session to
// idle. Turn totals are kept.
func (s *Session) ResetDialogue() {
	s.State = StateIdle
	s.PendingIntent = ""
	s.PendingSlot = ""
	s.PendingFollowup = ""
	s.StateTurns = 0
	s.Slots = make(map[string]string)
}

// EnterState transitions the session into state and restarts the per-state
// turn counter.
func (s *Session) EnterState(state SessionState) {
	s.State = state
	s.StateTurns = 0
}
