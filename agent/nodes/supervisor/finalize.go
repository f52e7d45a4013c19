package supervisornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	statex "github.com/omniflowhq/omniflow/agent/state"
)

// ValidateAndSaveState persists the session exactly once, at the end of the
// turn. Handlers mutate the in-memory session freely before this point.
func ValidateAndSaveState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in.Session == nil {
		return nil, fmt.Errorf("%w: session missing before save", contractx.ErrValidation)
	}
	in.Session.Touch(in.Now)
	if err := in.Session.Validate(); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, fmt.Errorf("save session %s: %w", in.SessionID, err)
	}
	return in, nil
}

// PublishTrace ships the turn's decision trace to the audit sink. Publishing
// is best-effort: an unreachable sink never fails a turn the user already
// got an answer for.
func PublishTrace(ctx context.Context, in *GraphState, publisher contractx.TracePublisher) (*GraphState, error) {
	if publisher == nil {
		return in, nil
	}
	if err := publisher.PublishTrace(ctx, in.SessionID, in.result()); err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("trace publish failed")
	}
	return in, nil
}

// FinalizeReply materializes the turn result from the graph state.
func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if !in.Answered() {
		return GraphOutput{}, fmt.Errorf("%w: turn produced no answer", contractx.ErrValidation)
	}
	return GraphOutput{Result: in.result()}, nil
}

func (s *GraphState) result() contractx.TurnResult {
	var pending contractx.PendingAction
	if s.Session != nil {
		pending = s.Session.Pending
	}
	return contractx.TurnResult{
		Answer:     s.Answer,
		Confidence: s.Confidence,
		Trace:      s.Trace,
		Facts:      s.Facts,
		Pending:    pending,
		NeedsImage: pending.Kind == contractx.PendingAwaitReturnImage,
	}
}
