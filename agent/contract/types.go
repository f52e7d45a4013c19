package contract

import (
	"encoding/json"
	"sort"
)

// Domain names facts are keyed by. "return" and "system" are synthetic
// domains owned by the supervisor itself.
const (
	DomainShopcore   = "shopcore"
	DomainShipstream = "shipstream"
	DomainPayguard   = "payguard"
	DomainCaredesk   = "caredesk"
	DomainReturn     = "return"
	DomainSystem     = "system"
)

// Intent is the discrete outcome of the intent gate.
type Intent string

const (
	IntentNone            Intent = ""
	IntentReturnImage     Intent = "return_image"
	IntentReturnConfirm   Intent = "return_confirm"
	IntentReturnCancel    Intent = "return_cancel"
	IntentReturnStatus    Intent = "return_status"
	IntentReturnRequest   Intent = "return_request"
	IntentPaidAmountOrder Intent = "paid_amount_order"
	IntentPaidAmount      Intent = "paid_amount"
	IntentComplexQuery    Intent = "complex_query"
	IntentShopcore        Intent = "shopcore"
	IntentShipstream      Intent = "shipstream"
	IntentPayguard        Intent = "payguard"
	IntentCaredesk        Intent = "caredesk"
)

// Record is one resolver's key/value result for a turn.
type Record map[string]any

// Facts maps a domain name to the record its resolver returned. Facts are the
// only permissible source of truth for a synthesized answer.
type Facts map[string]Record

// Set attaches a record, allocating the map on first use.
func (f *Facts) Set(domain string, rec Record) {
	if *f == nil {
		*f = make(Facts, 4)
	}
	(*f)[domain] = rec
}

// Domains returns the fact domains in stable sorted order, so downstream
// output never depends on resolver completion order.
func (f Facts) Domains() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalOrdered renders the facts as JSON. encoding/json sorts map keys,
// which gives the deterministic byte stream the synthesizer input requires.
func (f Facts) MarshalOrdered() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

// TraceEntry is one causal step of a turn's decision trace.
type TraceEntry struct {
	Agent  string `json:"agent"`
	Reason string `json:"reason"`
}

// TurnInput is everything the supervisor receives for one turn.
type TurnInput struct {
	Query     string `json:"query"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name,omitempty"`
	// Image is an optional base64 payload (data-URL prefix tolerated).
	Image string `json:"image,omitempty"`
}

// TurnResult is the supervisor's answer for one turn. Pending mirrors the
// session state persisted for the next turn.
type TurnResult struct {
	Answer     string        `json:"answer"`
	Confidence float64       `json:"confidence"`
	Trace      []TraceEntry  `json:"decision_trace"`
	Facts      Facts         `json:"facts"`
	Pending    PendingAction `json:"pending_action"`
	NeedsImage bool          `json:"needs_image"`
}
