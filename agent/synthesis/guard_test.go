package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	promptx "github.com/omniflowhq/omniflow/agent/prompt"
)

type fakeSynth struct {
	outputs []string
	err     error
	calls   int
	prompts []string
}

func (f *fakeSynth) Synthesize(_ context.Context, systemPrompt, _ string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, systemPrompt)
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.outputs) {
		return "", errors.New("no output left")
	}
	return f.outputs[idx], nil
}

func newTestGuard(synth contractx.Synthesizer) *Guard {
	return NewGuard(synth, promptx.LoadPromptSet())
}

func factsWithTracking() contractx.Facts {
	return contractx.Facts{
		contractx.DomainShipstream: contractx.Record{
			"tracking_number": "FWD-1001",
			"current_status":  "In Transit",
		},
	}
}

func TestAnswerAcceptsGroundedOutput(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{outputs: []string{"Your package FWD-1001 is In Transit."}}
	got := newTestGuard(synth).Answer(context.Background(), "where is FWD-1001", factsWithTracking())

	if got != "Your package FWD-1001 is In Transit." {
		t.Fatalf("unexpected answer: %q", got)
	}
	if synth.calls != 1 {
		t.Fatalf("expected 1 call, got %d", synth.calls)
	}
}

func TestAnswerRejectsForeignIdentifierThenRetries(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{outputs: []string{
		"FWD-9999 is on the way.",
		"FWD-1001 is In Transit.",
	}}
	guard := newTestGuard(synth)

	got := guard.Answer(context.Background(), "track my package", factsWithTracking())
	if got != "FWD-1001 is In Transit." {
		t.Fatalf("unexpected answer: %q", got)
	}
	if synth.calls != 2 {
		t.Fatalf("expected retry, got %d calls", synth.calls)
	}
	if synth.prompts[0] == synth.prompts[1] {
		t.Fatal("retry must use the stricter system prompt")
	}
}

func TestAnswerFallsBackAfterTwoRejections(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{outputs: []string{
		"FWD-9999 is on the way.",
		"Shipment FWD-8888 arrives tomorrow.",
	}}

	got := newTestGuard(synth).Answer(context.Background(), "track my package", factsWithTracking())
	if got != "FWD-1001 is currently In Transit." {
		t.Fatalf("unexpected fallback: %q", got)
	}
	if synth.calls != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", synth.calls)
	}
}

func TestAnswerRejectsBannedFiller(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{outputs: []string{
		"Let me check on FWD-1001 and get back to you.",
		"FWD-1001 is In Transit right now.",
	}}

	got := newTestGuard(synth).Answer(context.Background(), "track my package", factsWithTracking())
	if got != "FWD-1001 is In Transit right now." {
		t.Fatalf("unexpected answer: %q", got)
	}
}

func TestAnswerGeneratorUnavailable(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{err: errors.New("upstream 503")}
	got := newTestGuard(synth).Answer(context.Background(), "track my package", factsWithTracking())

	if got != "FWD-1001 is currently In Transit." {
		t.Fatalf("unexpected fallback: %q", got)
	}
	if synth.calls != 2 {
		t.Fatalf("expected one bounded retry, got %d calls", synth.calls)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	allowed := map[string]struct{}{"FWD-1001": {}}

	if err := Validate("FWD-1001 arrived.", allowed, DefaultBannedFillers); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	err := Validate("FWD-9999 arrived.", allowed, DefaultBannedFillers)
	if !errors.Is(err, contractx.ErrGroundingViolation) {
		t.Fatalf("expected grounding violation, got %v", err)
	}

	// Identifier spelled with a unicode hyphen still counts.
	err = Validate("FWD‑9999 arrived.", allowed, DefaultBannedFillers)
	if !errors.Is(err, contractx.ErrGroundingViolation) {
		t.Fatalf("expected grounding violation for unicode hyphen spelling, got %v", err)
	}

	err = Validate("One moment, I'll check.", allowed, DefaultBannedFillers)
	if !errors.Is(err, contractx.ErrGroundingViolation) {
		t.Fatalf("expected filler rejection, got %v", err)
	}
}

func TestAllowedIdentifiersWalksNestedValues(t *testing.T) {
	t.Parallel()

	facts := contractx.Facts{
		contractx.DomainShipstream: contractx.Record{
			"tracking_number": "FWD-1001",
			"linked": map[string]any{
				"reverse_number": "REV-9001",
			},
			"history": []any{"was NDR-201 once"},
		},
	}

	allowed := AllowedIdentifiers(facts)
	for _, want := range []string{"FWD-1001", "REV-9001", "NDR-201"} {
		if _, ok := allowed[want]; !ok {
			t.Errorf("missing %s in allowed set", want)
		}
	}
	if len(allowed) != 3 {
		t.Fatalf("unexpected allowed set size: %d", len(allowed))
	}
}

func TestFallbackVariants(t *testing.T) {
	t.Parallel()

	wallet := contractx.Facts{
		contractx.DomainPayguard: contractx.Record{"balance": "250.00", "currency": "INR"},
	}
	if got := Fallback(wallet); got != "Your wallet balance is 250.00 INR." {
		t.Fatalf("wallet fallback = %q", got)
	}

	empty := contractx.Facts{}
	if got := Fallback(empty); !strings.Contains(got, "tracking number") {
		t.Fatalf("empty fallback = %q", got)
	}
}
