package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	promptx "github.com/omniflowhq/omniflow/agent/prompt"
	statex "github.com/omniflowhq/omniflow/agent/state"
	synthx "github.com/omniflowhq/omniflow/agent/synthesis"
)

type resolverCall struct {
	op   contractx.Op
	args map[string]any
}

type fakeResolver struct {
	responses map[contractx.Op]contractx.Record
	errs      map[contractx.Op]error
	calls     []resolverCall
}

func (f *fakeResolver) Resolve(ctx context.Context, op contractx.Op, args map[string]any) (contractx.Record, error) {
	f.calls = append(f.calls, resolverCall{op: op, args: args})
	if err := f.errs[op]; err != nil {
		return nil, err
	}
	rec, ok := f.responses[op]
	if !ok {
		return contractx.Record{"found": false}, nil
	}
	out := make(contractx.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, nil
}

func (f *fakeResolver) callCount(op contractx.Op) int {
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

type fakeRegistry struct {
	shopcore   *fakeResolver
	shipstream *fakeResolver
	payguard   *fakeResolver
	caredesk   *fakeResolver
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		shopcore:   &fakeResolver{responses: map[contractx.Op]contractx.Record{}, errs: map[contractx.Op]error{}},
		shipstream: &fakeResolver{responses: map[contractx.Op]contractx.Record{}, errs: map[contractx.Op]error{}},
		payguard:   &fakeResolver{responses: map[contractx.Op]contractx.Record{}, errs: map[contractx.Op]error{}},
		caredesk:   &fakeResolver{responses: map[contractx.Op]contractx.Record{}, errs: map[contractx.Op]error{}},
	}
}

func (f *fakeRegistry) Shopcore() contractx.Resolver   { return f.shopcore }
func (f *fakeRegistry) Shipstream() contractx.Resolver { return f.shipstream }
func (f *fakeRegistry) Payguard() contractx.Resolver   { return f.payguard }
func (f *fakeRegistry) Caredesk() contractx.Resolver   { return f.caredesk }

type fakeSynth struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeSynth) Synthesize(ctx context.Context, systemPrompt, userFactsMessage string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "Here is the latest record.", nil
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

type fakePublisher struct {
	published []contractx.TurnResult
	err       error
}

func (f *fakePublisher) PublishTrace(ctx context.Context, sessionID string, result contractx.TurnResult) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, result)
	return nil
}

func testNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestSupervisor(t *testing.T, store statex.Store, registry contractx.Registry, synth contractx.Synthesizer, publisher contractx.TracePublisher) *Supervisor {
	t.Helper()
	guard := synthx.NewGuard(synth, promptx.LoadPromptSet())
	s, err := New(store, registry, guard, publisher, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestRunTurnInvalidInput(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, statex.NewMemoryStore(), newFakeRegistry(), &fakeSynth{}, nil)

	_, err := s.RunTurn(context.Background(), "   ", contractx.TurnInput{Query: "hello"})
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	_, err = s.RunTurn(context.Background(), "s1", contractx.TurnInput{Query: "   "})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestRunTurnReturnLifecycle(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shipstream.responses[contractx.OpCheckReturnEligibility] = contractx.Record{
		"tracking_number": "FWD-1013",
		"eligible":        true,
		"message":         "FWD-1013 is eligible for return. Would you like to proceed? (yes/no)",
	}
	registry.shipstream.responses[contractx.OpInitiateReturn] = contractx.Record{
		"tracking_number": "FWD-1013",
		"initiated":       true,
	}
	registry.shipstream.responses[contractx.OpSubmitReturnImage] = contractx.Record{
		"tracking_number": "FWD-1013",
		"return_id":       "RET-4242",
	}

	synth := &fakeSynth{responses: []string{"Your return for FWD-1013 is confirmed. Please send a photo of the item to continue."}}
	store := statex.NewMemoryStore()
	publisher := &fakePublisher{}
	s := newTestSupervisor(t, store, registry, synth, publisher)

	ctx := context.Background()
	user := contractx.TurnInput{UserEmail: "amy@example.com", UserName: "Amy"}

	turn1 := user
	turn1.Query = "I want to return FWD-1013"
	res1, err := s.RunTurn(ctx, "session-1", turn1)
	if err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if res1.Answer != "FWD-1013 is eligible for return. Would you like to proceed? (yes/no)" {
		t.Fatalf("turn 1 answer = %q", res1.Answer)
	}
	if res1.Pending.Kind != contractx.PendingConfirmReturn || res1.Pending.Tracking != "FWD-1013" {
		t.Fatalf("turn 1 pending = %+v, want confirm FWD-1013", res1.Pending)
	}
	if res1.Confidence != 1.0 {
		t.Fatalf("turn 1 confidence = %v", res1.Confidence)
	}

	turn2 := user
	turn2.Query = "yes"
	res2, err := s.RunTurn(ctx, "session-1", turn2)
	if err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}
	if registry.shipstream.callCount(contractx.OpInitiateReturn) != 1 {
		t.Fatalf("expected one initiate call, got %d", registry.shipstream.callCount(contractx.OpInitiateReturn))
	}
	if res2.Pending.Kind != contractx.PendingAwaitReturnImage {
		t.Fatalf("turn 2 pending = %+v, want await image", res2.Pending)
	}
	if !res2.NeedsImage {
		t.Fatal("turn 2 should ask for an image")
	}
	if !strings.Contains(res2.Answer, "FWD-1013") {
		t.Fatalf("turn 2 answer %q should reference the shipment", res2.Answer)
	}

	turn3 := user
	turn3.Query = "here is the photo"
	turn3.Image = "ZmFrZS1pbWFnZQ=="
	res3, err := s.RunTurn(ctx, "session-1", turn3)
	if err != nil {
		t.Fatalf("turn 3 error = %v", err)
	}
	want := "Your return has been processed successfully. Return ID: RET-4242. Do you need help with anything else?"
	if res3.Answer != want {
		t.Fatalf("turn 3 answer = %q, want %q", res3.Answer, want)
	}
	if !res3.Pending.IsZero() || res3.NeedsImage {
		t.Fatalf("turn 3 must clear the return flow, got pending %+v", res3.Pending)
	}
	if len(publisher.published) != 3 {
		t.Fatalf("expected 3 published traces, got %d", len(publisher.published))
	}
}

func TestRunTurnReturnImageDataURL(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shipstream.responses[contractx.OpSubmitReturnImage] = contractx.Record{
		"tracking_number": "FWD-1013",
		"return_id":       "RET-4242",
	}

	store := statex.NewMemoryStore()
	seed := statex.NewSessionState("session-1", "amy@example.com", testNow())
	seed.SetPending(contractx.AwaitReturnImage("FWD-1013"))
	if err := store.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed save error = %v", err)
	}

	s := newTestSupervisor(t, store, registry, &fakeSynth{}, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "here is the photo",
		UserEmail: "amy@example.com",
		Image:     "data:image/png;base64,ZmFrZS1pbWFnZQ==",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if res.Answer != "Your return has been processed successfully. Return ID: RET-4242. Do you need help with anything else?" {
		t.Fatalf("answer = %q", res.Answer)
	}

	var submitted []byte
	for _, c := range registry.shipstream.calls {
		if c.op == contractx.OpSubmitReturnImage {
			submitted, _ = c.args["image"].([]byte)
		}
	}
	if string(submitted) != "fake-image" {
		t.Fatalf("submitted image = %q, want the decoded payload", submitted)
	}
}

func TestRunTurnReturnImageRejectsUndecodablePayload(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()

	store := statex.NewMemoryStore()
	seed := statex.NewSessionState("session-1", "amy@example.com", testNow())
	seed.SetPending(contractx.AwaitReturnImage("FWD-1013"))
	if err := store.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed save error = %v", err)
	}

	synth := &fakeSynth{responses: []string{
		"I couldn't read that photo of FWD-1013. Please attach it again.",
	}}
	s := newTestSupervisor(t, store, registry, synth, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "photo attached",
		UserEmail: "amy@example.com",
		Image:     "%%%not-base64%%%",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if registry.shipstream.callCount(contractx.OpSubmitReturnImage) != 0 {
		t.Fatal("an undecodable payload must not reach the resolver")
	}
	if res.Pending.Kind != contractx.PendingAwaitReturnImage || !res.NeedsImage {
		t.Fatalf("pending = %+v, the image flow must stay parked", res.Pending)
	}
}

func TestRunTurnIneligibleReturn(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shipstream.responses[contractx.OpCheckReturnEligibility] = contractx.Record{
		"tracking_number": "FWD-1014",
		"eligible":        false,
		"message":         "FWD-1014 is not eligible for return because it has not been delivered yet.",
	}

	store := statex.NewMemoryStore()
	s := newTestSupervisor(t, store, registry, &fakeSynth{}, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "I want to return FWD-1014",
		UserEmail: "amy@example.com",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if res.Answer != "FWD-1014 is not eligible for return because it has not been delivered yet." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if !res.Pending.IsZero() {
		t.Fatalf("ineligible return must not park state, got %+v", res.Pending)
	}
	if registry.shipstream.callCount(contractx.OpInitiateReturn) != 0 {
		t.Fatal("ineligible return must not be initiated")
	}
}

func TestRunTurnStalePendingDropped(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shipstream.responses[contractx.OpLookup] = contractx.Record{
		"tracking_number": "FWD-2000",
		"found":           true,
		"status":          "In Transit",
	}

	store := statex.NewMemoryStore()
	seed := statex.NewSessionState("session-1", "amy@example.com", testNow())
	seed.SetPending(contractx.ConfirmReturn("FWD-1013"))
	if err := store.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed save error = %v", err)
	}

	synth := &fakeSynth{responses: []string{"FWD-2000 is currently In Transit."}}
	s := newTestSupervisor(t, store, registry, synth, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "actually, where is FWD-2000?",
		UserEmail: "amy@example.com",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if !res.Pending.IsZero() {
		t.Fatalf("stale pending must be dropped, got %+v", res.Pending)
	}
	if registry.shipstream.callCount(contractx.OpInitiateReturn) != 0 {
		t.Fatal("dropped flow must not initiate a return")
	}

	saved, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !saved.Pending.IsZero() {
		t.Fatalf("persisted session still pending: %+v", saved.Pending)
	}
}

func TestRunTurnReturnStatusOwnership(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shipstream.responses[contractx.OpCheckReturnStatus] = contractx.Record{
		"tracking_number": "FWD-1020",
		"order_id":        int64(7),
		"return_id":       "RET-9001",
		"message":         "A return exists for FWD-1020 (RET-9001, status: Pickup Scheduled).",
	}
	registry.shopcore.responses[contractx.OpOrderOwner] = contractx.Record{
		"email": "alice@example.com",
	}

	s := newTestSupervisor(t, statex.NewMemoryStore(), registry, &fakeSynth{}, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "is there a return created for FWD-1020?",
		UserEmail: "bob@example.com",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	want := "I'm unable to share return details for this shipment because it does not belong to your account."
	if res.Answer != want {
		t.Fatalf("answer = %q, want ownership denial", res.Answer)
	}
	if res.Facts[contractx.DomainReturn] != nil {
		t.Fatal("denied lookup must not expose return facts")
	}

	owner, err := s.RunTurn(context.Background(), "session-2", contractx.TurnInput{
		Query:     "is there a return created for FWD-1020?",
		UserEmail: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("owner RunTurn() error = %v", err)
	}
	if owner.Answer != "A return exists for FWD-1020 (RET-9001, status: Pickup Scheduled)." {
		t.Fatalf("owner answer = %q", owner.Answer)
	}
}

func TestRunTurnGroundingFallback(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shipstream.responses[contractx.OpLookup] = contractx.Record{
		"tracking_number": "FWD-1013",
		"found":           true,
		"status":          "In Transit",
	}

	// The generator keeps citing a shipment the facts never mention.
	synth := &fakeSynth{responses: []string{"Your shipment FWD-9999 is delayed."}}
	s := newTestSupervisor(t, statex.NewMemoryStore(), registry, synth, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "where is FWD-1013?",
		UserEmail: "amy@example.com",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if synth.calls != 2 {
		t.Fatalf("expected normal + strict attempt, got %d calls", synth.calls)
	}
	if res.Answer != "FWD-1013 is currently In Transit." {
		t.Fatalf("answer = %q, want deterministic fallback", res.Answer)
	}
}

func TestRunTurnComplexQueryPartialFailure(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shopcore.responses[contractx.OpOrderForUserProduct] = contractx.Record{
		"found":        true,
		"order_id":     int64(5001),
		"product_name": "Gaming Monitor",
	}
	registry.shipstream.errs[contractx.OpTrackingForOrder] = contractx.ErrResolverUnavailable
	registry.caredesk.responses[contractx.OpLatestTicket] = contractx.Record{
		"found":     true,
		"ticket_id": "TCK-77",
		"status":    "Open",
	}

	synth := &fakeSynth{responses: []string{
		"Your Gaming Monitor order 5001 has an open support ticket TCK-77. I couldn't retrieve its shipment right now.",
	}}
	s := newTestSupervisor(t, statex.NewMemoryStore(), registry, synth, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "I ordered a gaming monitor, it hasn't arrived, and I raised a support ticket about it",
		UserEmail: "amy@example.com",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	ship := res.Facts[contractx.DomainShipstream]
	if found, _ := ship["found"].(bool); found {
		t.Fatalf("shipstream facts = %v, want degraded placeholder", ship)
	}
	if ship["reason"] != "shipstream_unavailable" {
		t.Fatalf("shipstream facts = %v, want unavailability reason", ship)
	}
	if res.Confidence != 0.7 {
		t.Fatalf("confidence = %v, want 0.7 for partial facts", res.Confidence)
	}
}

func TestRunTurnResolverFailureConfidence(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shipstream.errs[contractx.OpLookup] = contractx.ErrResolverUnavailable

	synth := &fakeSynth{responses: []string{
		"I couldn't look up FWD-1013 right now. Please try again in a moment.",
	}}
	s := newTestSupervisor(t, statex.NewMemoryStore(), registry, synth, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "where is FWD-1013?",
		UserEmail: "amy@example.com",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	ship := res.Facts[contractx.DomainShipstream]
	if ok, _ := ship["resolver_error"].(bool); !ok {
		t.Fatalf("shipstream facts = %v, want resolver_error marker", ship)
	}
	if res.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5 after a resolver failure", res.Confidence)
	}
}

func TestRunTurnPaidAmountForOrder(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shopcore.responses[contractx.OpOrderByID] = contractx.Record{
		"found":        true,
		"order_id":     int64(5001),
		"product_name": "Gaming Monitor",
	}
	registry.payguard.responses[contractx.OpPaidAmountForOrder] = contractx.Record{
		"found":    true,
		"amount":   "299.00",
		"currency": "USD",
	}

	synth := &fakeSynth{}
	s := newTestSupervisor(t, statex.NewMemoryStore(), registry, synth, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "how much did I pay for order 5001?",
		UserEmail: "amy@example.com",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if res.Answer != "You paid 299.00 USD for 'Gaming Monitor' (order 5001)." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if res.Confidence != 1.0 {
		t.Fatalf("confidence = %v", res.Confidence)
	}
	if synth.calls != 0 {
		t.Fatalf("templated amounts must not invoke the generator, got %d calls", synth.calls)
	}
}

func TestRunTurnWalletScopingConstraint(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry()
	registry.shipstream.responses[contractx.OpLookup] = contractx.Record{
		"tracking_number": "FWD-1013",
		"found":           true,
		"status":          "In Transit",
	}
	synth := &fakeSynth{responses: []string{
		"FWD-1013 is In Transit. Wallet balances are account-level, so I can't scope yours to a shipment.",
	}}
	s := newTestSupervisor(t, statex.NewMemoryStore(), registry, synth, nil)

	res, err := s.RunTurn(context.Background(), "session-1", contractx.TurnInput{
		Query:     "what is my wallet balance for FWD-1013?",
		UserEmail: "amy@example.com",
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if registry.shipstream.callCount(contractx.OpLookup) != 1 {
		t.Fatal("an identifier must route through the shipment lookup")
	}
	if registry.payguard.callCount(contractx.OpWalletBalance) != 0 {
		t.Fatal("scoped wallet question must not hit the wallet lookup")
	}
	pay := res.Facts[contractx.DomainPayguard]
	if pay["constraint"] != "wallet_not_scoped_to_shipment" {
		t.Fatalf("payguard facts = %v, want scoping constraint", pay)
	}
	if !strings.Contains(res.Answer, "FWD-1013") {
		t.Fatalf("answer = %q, should acknowledge the shipment", res.Answer)
	}
}
