package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrNilSessionState = errors.New("session state is nil")
	ErrInvalidSession  = errors.New("session id is empty")
)

// SessionState is the per-user conversation record the supervisor owns.
// Created lazily on a user's first turn, overwritten idempotently every turn,
// never deleted. The Pending field is the single-writer resource that makes a
// session's return flow resumable.
type SessionState struct {
	SessionID string `json:"session_id"`
	UserEmail string `json:"user_email"`

	Name         string `json:"name,omitempty"`
	LastTracking string `json:"last_tracking,omitempty"`
	LastOrderRef int64  `json:"last_order_ref,omitempty"`

	Pending contractx.PendingAction `json:"pending_action"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewSessionState(sessionID, userEmail string, now time.Time) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		UserEmail: userEmail,
		UpdatedAt: now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// SetPending replaces the pending action. There is never more than one.
func (s *SessionState) SetPending(p contractx.PendingAction) {
	s.Pending = p
}

func (s *SessionState) ClearPending() {
	s.Pending = contractx.PendingAction{}
}

// DropStalePending clears the pending action when the incoming turn refers to
// a different tracking identifier than the one the pending flow is scoped to.
// Reports whether a stale action was dropped.
func (s *SessionState) DropStalePending(incomingTracking string) bool {
	if s.Pending.IsZero() || incomingTracking == "" {
		return false
	}
	if strings.EqualFold(s.Pending.Tracking, incomingTracking) {
		return false
	}
	s.ClearPending()
	return true
}

func (s *SessionState) Validate() error {
	if s == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if err := s.Pending.Validate(); err != nil {
		return fmt.Errorf("session %s: %w", s.SessionID, err)
	}
	return nil
}
