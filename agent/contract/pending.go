package contract

import "fmt"

// PendingKind enumerates the multi-turn flows a session can be parked in.
type PendingKind string

const (
	PendingNone             PendingKind = ""
	PendingConfirmReturn    PendingKind = "confirm_return"
	PendingAwaitReturnImage PendingKind = "await_return_image"
)

// PendingAction marks that the next turn should be interpreted as a
// continuation of a specific flow. At most one exists per session; the zero
// value means no pending flow.
type PendingAction struct {
	Kind     PendingKind `json:"kind,omitempty"`
	Tracking string      `json:"tracking_number,omitempty"`
}

func ConfirmReturn(tracking string) PendingAction {
	return PendingAction{Kind: PendingConfirmReturn, Tracking: tracking}
}

func AwaitReturnImage(tracking string) PendingAction {
	return PendingAction{Kind: PendingAwaitReturnImage, Tracking: tracking}
}

func (p PendingAction) IsZero() bool {
	return p.Kind == PendingNone
}

func (p PendingAction) Validate() error {
	switch p.Kind {
	case PendingNone:
		if p.Tracking != "" {
			return fmt.Errorf("%w: empty pending action carries tracking=%s", ErrValidation, p.Tracking)
		}
		return nil
	case PendingConfirmReturn, PendingAwaitReturnImage:
		if p.Tracking == "" {
			return fmt.Errorf("%w: pending action %s requires a tracking number", ErrValidation, p.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown pending action kind=%q", ErrValidation, p.Kind)
	}
}
