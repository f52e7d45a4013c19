package supervisornode

import (
	"context"
	"errors"
	"strings"
	"time"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	identx "github.com/omniflowhq/omniflow/agent/identifier"
	statex "github.com/omniflowhq/omniflow/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID string
	Input     contractx.TurnInput
}

type GraphOutput struct {
	Result contractx.TurnResult
}

// GraphState is the turn-scoped working state threaded through the
// supervisor graph. Facts and the trace are discarded after the turn;
// Session outlives it via the store.
type GraphState struct {
	SessionID string
	Input     contractx.TurnInput
	// Query is the normalized text every rule matches against.
	Query string
	Now   time.Time

	Session *statex.SessionState

	Intent     contractx.Intent
	Facts      contractx.Facts
	Trace      []contractx.TraceEntry
	Confidence float64
	Answer     string
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	raw := strings.TrimSpace(in.Input.Query)
	if raw == "" && strings.TrimSpace(in.Input.Image) == "" {
		return nil, ErrInvalidMessage
	}

	in.Input.Query = raw
	return &GraphState{
		SessionID: sessionID,
		Input:     in.Input,
		Query:     identx.Normalize(raw),
		Now:       nowFn().UTC(),
	}, nil
}

// AddTrace appends one causal decision step. Entries are additive only.
func (s *GraphState) AddTrace(agent, reason string) {
	s.Trace = append(s.Trace, contractx.TraceEntry{Agent: agent, Reason: reason})
}

// Finish records the turn's final answer and confidence.
func (s *GraphState) Finish(answer string, confidence float64) {
	s.Answer = answer
	s.Confidence = confidence
}

func (s *GraphState) Answered() bool {
	return strings.TrimSpace(s.Answer) != ""
}

func (s *GraphState) HasImage() bool {
	return strings.TrimSpace(s.Input.Image) != ""
}

func (s *GraphState) HasIdentity() bool {
	return strings.TrimSpace(s.Input.UserEmail) != ""
}

// LoadOrCreateState reads the session once at turn start. Sessions are
// created lazily on a user's first turn.
func LoadOrCreateState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	st, err := store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, statex.ErrStateNotFound) {
			return nil, err
		}
		st = statex.NewSessionState(in.SessionID, in.Input.UserEmail, in.Now)
	}
	if in.Input.UserName != "" {
		st.Name = in.Input.UserName
	}
	if st.UserEmail == "" {
		st.UserEmail = in.Input.UserEmail
	}
	in.Session = st
	return in, nil
}
