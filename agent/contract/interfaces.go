package contract

import "context"

// Op names a resolver operation. An alias rather than a defined type so op
// values stay interchangeable with plain strings in args maps and logs.
type Op = string

// Resolver operation names the supervisor uses. Resolvers may support more;
// unknown operations return ErrRecordNotFound.
const (
	OpLookup                 Op = "lookup"
	OpOrderForUserProduct    Op = "order_for_user_product"
	OpTrackingForOrder       Op = "tracking_for_order"
	OpCheckReturnEligibility Op = "check_return_eligibility"
	OpInitiateReturn         Op = "initiate_return"
	OpSubmitReturnImage      Op = "submit_return_image"
	OpCheckReturnStatus      Op = "check_return_status"
	OpLatestTicket           Op = "latest_ticket"
	OpWalletBalance          Op = "wallet_balance"
	OpPaidAmountForOrder     Op = "paid_amount_for_order"
	OpOrderByID              Op = "order_by_id"
	OpOrderOwner             Op = "order_owner"
)

// Resolver is the single capability every domain exposes. A nil record with a
// nil error means "not found"; errors are degraded by the supervisor, never
// surfaced raw to the user.
type Resolver interface {
	Resolve(ctx context.Context, op Op, args map[string]any) (Record, error)
}

// Registry hands out the four domain resolvers the supervisor depends on.
type Registry interface {
	Shopcore() Resolver
	Shipstream() Resolver
	Payguard() Resolver
	Caredesk() Resolver
}

// Synthesizer is the natural-language generator, stateless and side-effect
// free from the supervisor's perspective.
type Synthesizer interface {
	Synthesize(ctx context.Context, systemPrompt string, userFactsMessage string) (string, error)
}

// TracePublisher ships a finished turn's decision trace to an external sink.
// Publishing is best-effort; failures are logged, never surfaced.
type TracePublisher interface {
	PublishTrace(ctx context.Context, sessionID string, result TurnResult) error
}
