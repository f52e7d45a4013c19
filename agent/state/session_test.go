package state

import (
	"errors"
	"testing"
	"time"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
)

func TestDropStalePending(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	st := NewSessionState("ananya@example.com", "ananya@example.com", now)
	st.SetPending(contractx.ConfirmReturn("FWD-1001"))

	if st.DropStalePending("") {
		t.Fatal("no incoming tracking must not drop the pending action")
	}
	if st.DropStalePending("fwd-1001") {
		t.Fatal("same tracking (any case) must not drop the pending action")
	}
	if !st.DropStalePending("FWD-1002") {
		t.Fatal("different tracking must drop the pending action")
	}
	if !st.Pending.IsZero() {
		t.Fatalf("pending action not cleared: %+v", st.Pending)
	}

	// Dropping again is a no-op.
	if st.DropStalePending("FWD-1003") {
		t.Fatal("drop on empty pending must report false")
	}
}

func TestSessionValidate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	st := NewSessionState("", "x@example.com", now)
	if err := st.Validate(); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	st = NewSessionState("x@example.com", "x@example.com", now)
	st.Pending = contractx.PendingAction{Kind: contractx.PendingConfirmReturn}
	if err := st.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for trackingless pending, got %v", err)
	}

	st.SetPending(contractx.AwaitReturnImage("FWD-1001"))
	if err := st.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
