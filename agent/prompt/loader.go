package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/synthesizer.txt
	synthesizerRaw string

	//go:embed template/synthesizer_strict.txt
	synthesizerStrictRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	// Synthesizer is the grounded answer-writing system prompt.
	Synthesizer string
	// SynthesizerStrict is the tightened prompt used for the single retry
	// after a grounding rejection.
	SynthesizerStrict string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings. Safe to call
// concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Synthesizer:       strings.TrimSpace(synthesizerRaw),
		SynthesizerStrict: strings.TrimSpace(synthesizerStrictRaw),
	}
}
