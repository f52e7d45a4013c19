// Package synthesis turns a facts bag into the single user-facing answer and
// guarantees the answer never claims anything the facts do not contain.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	identx "github.com/omniflowhq/omniflow/agent/identifier"
	promptx "github.com/omniflowhq/omniflow/agent/prompt"
)

const defaultCallTimeout = 15 * time.Second

// DefaultBannedFillers are phrases implying a later follow-up the system
// cannot deliver; answers must be point-in-time.
var DefaultBannedFillers = []string{
	"let me check",
	"i'll check",
	"i will check",
	"one moment",
	"give me a moment",
	"get back to you",
	"hold on",
	"please wait",
	"checking on it",
	"i'll look into",
	"i will look into",
}

// Guard wraps the generator with grounding validation: one normal attempt,
// one stricter retry, then a deterministic fallback built only from facts.
type Guard struct {
	synth         contractx.Synthesizer
	prompts       promptx.PromptSet
	callTimeout   time.Duration
	bannedFillers []string
}

type Option func(*Guard)

func WithCallTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

// WithBannedFillers replaces the banned filler phrase list. The list is
// configuration, not contract.
func WithBannedFillers(phrases []string) Option {
	return func(g *Guard) {
		g.bannedFillers = phrases
	}
}

func NewGuard(synth contractx.Synthesizer, prompts promptx.PromptSet, opts ...Option) *Guard {
	g := &Guard{
		synth:         synth,
		prompts:       prompts,
		callTimeout:   defaultCallTimeout,
		bannedFillers: DefaultBannedFillers,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Answer synthesizes a grounded answer for the facts. It never returns an
// empty string and never propagates generator failures: after one rejected or
// failed attempt and one stricter retry, it falls back to a deterministic
// sentence built from the facts themselves.
func (g *Guard) Answer(ctx context.Context, userMessage string, facts contractx.Facts) string {
	allowed := AllowedIdentifiers(facts)
	userMsg, err := buildUserMessage(userMessage, facts)
	if err != nil {
		log.Error().Err(err).Msg("marshal facts for synthesis")
		return Fallback(facts)
	}

	for attempt, systemPrompt := range []string{g.prompts.Synthesizer, g.prompts.SynthesizerStrict} {
		text, err := g.invoke(ctx, systemPrompt, userMsg)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("synthesizer invoke failed")
			continue
		}
		if err := Validate(text, allowed, g.bannedFillers); err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Str("text", text).Msg("synthesized answer rejected")
			continue
		}
		return text
	}

	return Fallback(facts)
}

func (g *Guard) invoke(ctx context.Context, systemPrompt, userMsg string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	text, err := g.synth.Synthesize(callCtx, systemPrompt, userMsg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrSynthesizerInvoke, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", contractx.ErrSynthesizerInvoke)
	}
	return text, nil
}

func buildUserMessage(userMessage string, facts contractx.Facts) (string, error) {
	factsJSON, err := facts.MarshalOrdered()
	if err != nil {
		return "", err
	}
	return "USER_MESSAGE:\n" + userMessage + "\n\nFACTS_JSON:\n" + string(factsJSON), nil
}

// AllowedIdentifiers collects every tracking identifier occurring anywhere in
// the facts. Only members of this set may appear in a synthesized answer.
func AllowedIdentifiers(facts contractx.Facts) map[string]struct{} {
	allowed := make(map[string]struct{})
	for _, rec := range facts {
		collectIdentifiers(rec, allowed)
	}
	return allowed
}

func collectIdentifiers(v any, into map[string]struct{}) {
	switch val := v.(type) {
	case string:
		for _, id := range identx.ExtractAll(val) {
			into[id.String()] = struct{}{}
		}
	case contractx.Record:
		for _, nested := range val {
			collectIdentifiers(nested, into)
		}
	case map[string]any:
		for _, nested := range val {
			collectIdentifiers(nested, into)
		}
	case []any:
		for _, nested := range val {
			collectIdentifiers(nested, into)
		}
	}
}

// Validate rejects generated text that either names an identifier outside the
// allowed set or uses a banned future-action filler phrase.
func Validate(text string, allowed map[string]struct{}, bannedFillers []string) error {
	for _, token := range identx.CanonicalPattern.FindAllString(identx.Normalize(text), -1) {
		if _, ok := allowed[token]; !ok {
			return fmt.Errorf("%w: identifier %s not present in facts", contractx.ErrGroundingViolation, token)
		}
	}

	lower := strings.ToLower(text)
	for _, phrase := range bannedFillers {
		if strings.Contains(lower, phrase) {
			return fmt.Errorf("%w: banned filler phrase %q", contractx.ErrGroundingViolation, phrase)
		}
	}
	return nil
}

// Fallback builds a deterministic sentence from fields explicitly present in
// the facts, or a clarifying question when none are usable. Domains are
// visited in stable order so the output never depends on map iteration.
func Fallback(facts contractx.Facts) string {
	for _, domain := range facts.Domains() {
		rec := facts[domain]

		tracking, _ := rec["tracking_number"].(string)
		if tracking != "" {
			if status := firstString(rec, "current_status", "status"); status != "" {
				return fmt.Sprintf("%s is currently %s.", tracking, status)
			}
			if stage, _ := rec["stage"].(string); stage == "awaiting_image" {
				return fmt.Sprintf("Your return for %s is confirmed. Please send a photo of the item to continue.", tracking)
			}
		}

		if balance := firstString(rec, "balance"); balance != "" {
			if currency := firstString(rec, "currency"); currency != "" {
				return fmt.Sprintf("Your wallet balance is %s %s.", balance, currency)
			}
			return fmt.Sprintf("Your wallet balance is %s.", balance)
		}

		if amount := firstString(rec, "amount"); amount != "" {
			if orderID, ok := rec["order_id"]; ok {
				return fmt.Sprintf("You paid %s for order %v.", amount, orderID)
			}
		}
	}

	return "Could you share a tracking number (like FWD-1013) or an order ID so I can look that up?"
}

func firstString(rec contractx.Record, keys ...string) string {
	for _, key := range keys {
		if s, ok := rec[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
