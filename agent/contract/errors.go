package contract

import "errors"

var (
	// ErrIdentifierMissing means the turn needs a tracking/order identifier
	// the user has not supplied yet.
	ErrIdentifierMissing = errors.New("identifier is missing")

	// ErrIdentityMissing means the user must identify themselves before any
	// record is touched.
	ErrIdentityMissing = errors.New("user identity is missing")

	// ErrRecordNotFound is returned by resolvers when a lookup comes back empty.
	ErrRecordNotFound = errors.New("record not found")

	// ErrResolverUnavailable wraps resolver transport/query failures. The
	// supervisor degrades it to a not-found style answer, never a hard error.
	ErrResolverUnavailable = errors.New("resolver unavailable")

	// ErrOwnershipMismatch means the requested record belongs to a different
	// account than the requester.
	ErrOwnershipMismatch = errors.New("record belongs to a different account")

	// ErrGroundingViolation means generator output referenced values absent
	// from the turn's facts.
	ErrGroundingViolation = errors.New("generated answer violates grounding")

	ErrSynthesizerInvoke = errors.New("synthesizer invoke failed")
	ErrValidation        = errors.New("validation failed")
)
