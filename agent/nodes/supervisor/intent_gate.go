package supervisornode

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	identx "github.com/omniflowhq/omniflow/agent/identifier"
	synthx "github.com/omniflowhq/omniflow/agent/synthesis"
)

// IntentGate runs the rule cascade and either records an intent for the
// dispatcher or finishes the turn with a direct answer. It also commits the
// turn's identifier observations to the session.
func IntentGate(ctx context.Context, in *GraphState, gate *Gate, guard *synthx.Guard) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	if id, ok := identx.Extract(in.Query); ok {
		if in.Session.DropStalePending(id.String()) {
			in.AddTrace("IntentGate", "Stale pending action discarded for new identifier")
		}
		in.Session.LastTracking = id.String()
	}
	if ref, ok := identx.ExtractOrderRef(in.Query); ok {
		in.Session.LastOrderRef = ref
	}

	decision := gate.Decide(in.Query, in.Session.Pending, in.HasImage(), in.HasIdentity())

	if decision.DirectFacts != nil {
		in.Facts = decision.DirectFacts
		in.AddTrace("IntentGate", "Direct answer, rule "+decision.Rule)
		in.Finish(guard.Answer(ctx, in.Input.Query, decision.DirectFacts), 1.0)
		return in, nil
	}

	if !decision.PreservePending {
		in.Session.ClearPending()
	}
	in.Intent = decision.Intent
	in.AddTrace("IntentGate", "Matched rule "+decision.Rule)
	return in, nil
}

// GateConfig holds the heuristic vocabularies the gate matches against.
// The yes/no token lists are configuration, not contract: legitimate
// phrasings outside them fall through to the re-ask branch.
type GateConfig struct {
	YesTokens []string
	NoTokens  []string
	Aliases   []identx.ProductAlias
}

func DefaultGateConfig() GateConfig {
	return GateConfig{
		YesTokens: []string{"yes", "y", "yeah", "yep", "confirm", "confirmed", "sure", "ok", "okay"},
		NoTokens:  []string{"no", "n", "nope", "cancel", "cancelled"},
		Aliases:   identx.DefaultProductAliases(),
	}
}

// GateDecision is the gate's verdict for one turn. Exactly one of Intent and
// DirectFacts is meaningful: DirectFacts non-nil means the gate short-circuits
// with a synthesized direct answer and no routing happens.
type GateDecision struct {
	Rule        string
	Intent      contractx.Intent
	DirectFacts contractx.Facts
	// PreservePending keeps the session's pending action untouched (the
	// re-ask branch); every other fresh dispatch clears it.
	PreservePending bool
	DroppedStale    bool
}

// Gate classifies a normalized query into one discrete intent, or
// short-circuits with a direct answer. Rules are evaluated strictly in
// order; the first match wins.
type Gate struct {
	cfg   GateConfig
	rules []gateRule
}

type gateInput struct {
	query     string // normalized, lowercased for keyword checks
	raw       string // normalized, original case
	pending   contractx.PendingAction
	hasImage  bool
	hasIdent  bool
	tracking  identx.Identifier
	hasTrack  bool
	orderRef  int64
	hasOrder  bool
	product   string
	hasProd   bool
	asksPaid  bool
	yesTokens []string
	noTokens  []string
}

type gateRule struct {
	name  string
	apply func(in *gateInput) (GateDecision, bool)
}

func NewGate(cfg GateConfig) *Gate {
	g := &Gate{cfg: cfg}
	g.rules = []gateRule{
		{"pending_image", ruleAwaitImage},
		{"pending_confirm", g.ruleConfirmPending},
		{"paid_amount_order", rulePaidAmountOrder},
		{"paid_amount_product", rulePaidAmountProduct},
		{"complex_query", ruleComplexQuery},
		{"return_status", ruleReturnStatus},
		{"return_request", ruleReturnRequest},
		{"identity_required", ruleIdentityRequired},
		{"tracking_lookup", ruleTrackingLookup},
		{"wallet", ruleWallet},
		{"shipment_keywords", ruleShipmentKeywords},
		{"default_shopcore", ruleDefaultShopcore},
	}
	return g
}

// Decide runs the cascade. The stale-pending-action guard runs before any
// rule: a turn naming a different tracking identifier than the pending flow
// silently discards that flow, so the pending branches cannot misfire.
func (g *Gate) Decide(rawQuery string, pending contractx.PendingAction, hasImage, hasIdentity bool) GateDecision {
	normalized := identx.Normalize(rawQuery)

	in := &gateInput{
		query:     strings.ToLower(normalized),
		raw:       normalized,
		pending:   pending,
		hasImage:  hasImage,
		hasIdent:  hasIdentity,
		yesTokens: g.cfg.YesTokens,
		noTokens:  g.cfg.NoTokens,
	}
	in.tracking, in.hasTrack = identx.Extract(normalized)
	in.orderRef, in.hasOrder = identx.ExtractOrderRef(normalized)
	in.product, in.hasProd = identx.ExtractProductName(normalized, g.cfg.Aliases)
	in.asksPaid = containsAny(in.query, "paid", "price", "how much", "amount", "cost")

	dropped := false
	if !in.pending.IsZero() && in.hasTrack && !strings.EqualFold(in.pending.Tracking, in.tracking.String()) {
		in.pending = contractx.PendingAction{}
		dropped = true
	}

	for _, rule := range g.rules {
		if decision, ok := rule.apply(in); ok {
			decision.Rule = rule.name
			decision.DroppedStale = dropped
			return decision
		}
	}

	// The table is exhaustive; default_shopcore always matches.
	return GateDecision{Rule: "default_shopcore", Intent: contractx.IntentShopcore, DroppedStale: dropped}
}

func ruleAwaitImage(in *gateInput) (GateDecision, bool) {
	if in.pending.Kind != contractx.PendingAwaitReturnImage {
		return GateDecision{}, false
	}
	// With or without an image payload the turn stays in the image flow;
	// the handler re-prompts when the image is missing.
	return GateDecision{Intent: contractx.IntentReturnImage, PreservePending: true}, true
}

func (g *Gate) ruleConfirmPending(in *gateInput) (GateDecision, bool) {
	if in.pending.Kind != contractx.PendingConfirmReturn {
		return GateDecision{}, false
	}
	if matchesToken(in.raw, in.yesTokens) {
		return GateDecision{Intent: contractx.IntentReturnConfirm, PreservePending: true}, true
	}
	if matchesToken(in.raw, in.noTokens) {
		return GateDecision{Intent: contractx.IntentReturnCancel, PreservePending: true}, true
	}
	// Anything else re-asks and keeps the pending action so the user can
	// answer on a later turn.
	return GateDecision{
		DirectFacts: contractx.Facts{
			contractx.DomainReturn: contractx.Record{
				"tracking_number": in.pending.Tracking,
				"next_step":       "awaiting_confirmation_yes_no",
			},
		},
		PreservePending: true,
	}, true
}

func rulePaidAmountOrder(in *gateInput) (GateDecision, bool) {
	if in.hasOrder && in.asksPaid {
		return GateDecision{Intent: contractx.IntentPaidAmountOrder}, true
	}
	return GateDecision{}, false
}

func rulePaidAmountProduct(in *gateInput) (GateDecision, bool) {
	if in.hasProd && in.asksPaid {
		return GateDecision{Intent: contractx.IntentPaidAmount}, true
	}
	return GateDecision{}, false
}

func ruleComplexQuery(in *gateInput) (GateDecision, bool) {
	isComplex := containsAny(in.query, "ticket", "support", "case") &&
		containsAny(in.query, "ordered", "order", "bought", "purchase") &&
		containsAny(in.query, "hasn't arrived", "hasnt arrived", "not arrived", "not delivered", "late") &&
		!in.hasTrack
	if isComplex {
		return GateDecision{Intent: contractx.IntentComplexQuery}, true
	}
	return GateDecision{}, false
}

func ruleReturnStatus(in *gateInput) (GateDecision, bool) {
	if containsAny(in.query, "return created", "return status", "is there a return") && in.hasTrack {
		return GateDecision{Intent: contractx.IntentReturnStatus}, true
	}
	return GateDecision{}, false
}

func ruleReturnRequest(in *gateInput) (GateDecision, bool) {
	if containsAny(in.query, "return", "send back", "refund") && in.hasTrack {
		return GateDecision{Intent: contractx.IntentReturnRequest}, true
	}
	return GateDecision{}, false
}

func ruleIdentityRequired(in *gateInput) (GateDecision, bool) {
	if in.hasTrack && !in.hasIdent {
		// No data is touched before the user identifies themselves.
		return GateDecision{
			DirectFacts: contractx.Facts{
				contractx.DomainSystem: contractx.Record{"require_identity": true},
			},
		}, true
	}
	return GateDecision{}, false
}

func ruleTrackingLookup(in *gateInput) (GateDecision, bool) {
	if in.hasTrack {
		return GateDecision{Intent: contractx.IntentShipstream}, true
	}
	return GateDecision{}, false
}

// ruleWallet only fires for identifier-free queries: any identifier routes
// through the tracking lookup, whose handler attaches the wallet scoping
// note when wallet keywords co-occur.
func ruleWallet(in *gateInput) (GateDecision, bool) {
	if containsAny(in.query, "wallet", "balance", "payment", "refund") {
		return GateDecision{Intent: contractx.IntentPayguard}, true
	}
	return GateDecision{}, false
}

func ruleShipmentKeywords(in *gateInput) (GateDecision, bool) {
	if containsAny(in.query, "track", "shipment", "delivery") {
		// The shipstream handler itself asks for the missing identifier.
		return GateDecision{Intent: contractx.IntentShipstream}, true
	}
	return GateDecision{}, false
}

func ruleDefaultShopcore(*gateInput) (GateDecision, bool) {
	return GateDecision{Intent: contractx.IntentShopcore}, true
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// matchesToken does exact case-insensitive whole-string matching, so "no
// thanks, actually yes" never parses as a confirmation.
func matchesToken(text string, tokens []string) bool {
	trimmed := strings.TrimRight(strings.TrimSpace(text), ".!")
	for _, tok := range tokens {
		if strings.EqualFold(trimmed, tok) {
			return true
		}
	}
	return false
}
