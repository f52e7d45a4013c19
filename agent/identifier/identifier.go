// Package identifier canonicalizes and extracts the tracking-style tokens
// (FWD-1013, REV-9001, NDR-201, EXC-301) customers paste into chat in every
// imaginable spelling.
package identifier

import (
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
)

// Kind tags which shipment record family an identifier points at.
type Kind string

const (
	KindForward  Kind = "FWD"
	KindReverse  Kind = "REV"
	KindNDR      Kind = "NDR"
	KindExchange Kind = "EXC"
)

// Identifier is a tagged tracking token, rendered canonically as KIND-NUMBER.
type Identifier struct {
	Kind   Kind   `json:"kind"`
	Number string `json:"number"`
}

func (id Identifier) String() string {
	return string(id.Kind) + "-" + id.Number
}

func (id Identifier) IsForward() bool {
	return id.Kind == KindForward
}

var (
	// Unicode hyphen/dash variants folded to ASCII before matching.
	unicodeDashPattern = regexp.MustCompile(`[‐‑‒–—−]`)

	// Tolerates "FWD-1013", "fwd 1013", "FWD1013" and any dash variant
	// after folding.
	trackingPattern = regexp.MustCompile(`(?i)\b(fwd|rev|ndr|exc)[\s-]*(\d+)\b`)

	// CanonicalPattern matches only fully canonical tokens. The grounding
	// guard scans generated text with it.
	CanonicalPattern = regexp.MustCompile(`\b(FWD|REV|NDR|EXC)-\d+\b`)

	orderRefPattern = regexp.MustCompile(`(?i)\border\s*#?\s*(\d{3,})\b`)

	quotedPattern = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
)

// Normalize folds unicode dashes to ASCII and rewrites every tracking token
// in the text to its canonical KIND-NUMBER form. Normalizing canonical text
// is a no-op.
func Normalize(text string) string {
	folded := unicodeDashPattern.ReplaceAllString(text, "-")
	return trackingPattern.ReplaceAllStringFunc(folded, func(m string) string {
		sub := trackingPattern.FindStringSubmatch(m)
		return strings.ToUpper(sub[1]) + "-" + sub[2]
	})
}

// Extract returns the first tracking identifier in the text, if any.
// The text does not need to be normalized first.
func Extract(text string) (Identifier, bool) {
	ids := ExtractAll(text)
	if len(ids) == 0 {
		return Identifier{}, false
	}
	return ids[0], true
}

// ExtractAll returns every tracking identifier in the text, in order of
// appearance.
func ExtractAll(text string) []Identifier {
	matches := trackingPattern.FindAllStringSubmatch(unicodeDashPattern.ReplaceAllString(text, "-"), -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]Identifier, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, Identifier{
			Kind:   Kind(strings.ToUpper(m[1])),
			Number: m[2],
		})
	}
	return ids
}

// Parse converts a canonical or near-canonical token into an Identifier.
func Parse(token string) (Identifier, error) {
	id, ok := Extract(token)
	if !ok {
		return Identifier{}, fmt.Errorf("%w: no tracking identifier in %q", contractx.ErrValidation, token)
	}
	return id, nil
}

// ExtractOrderRef pulls a numeric order reference ("order 5001") from the
// text. Order ids shorter than three digits are left alone to avoid matching
// quantities.
func ExtractOrderRef(text string) (int64, bool) {
	m := orderRefPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	var n int64
	for _, ch := range m[1] {
		n = n*10 + int64(ch-'0')
	}
	if n == 0 {
		return 0, false
	}
	return n, true
}

// ExtractProductName pulls a product name from the text: a quoted phrase
// first, then any configured alias. Aliases map a detection regex to the
// catalog name ("gaming monitor" misspellings included by default).
func ExtractProductName(text string, aliases []ProductAlias) (string, bool) {
	if m := quotedPattern.FindStringSubmatch(text); m != nil {
		for _, group := range m[1:] {
			if name := strings.TrimSpace(group); name != "" {
				return name, true
			}
		}
	}
	for _, alias := range aliases {
		if alias.pattern != nil && alias.pattern.MatchString(text) {
			return alias.Name, true
		}
	}
	return "", false
}

// ProductAlias maps a free-text pattern to a canonical catalog name.
type ProductAlias struct {
	Name    string
	pattern *regexp.Regexp
}

// NewProductAlias compiles a case-insensitive alias pattern.
func NewProductAlias(name, pattern string) (ProductAlias, error) {
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return ProductAlias{}, fmt.Errorf("%w: alias pattern %q: %v", contractx.ErrValidation, pattern, err)
	}
	return ProductAlias{Name: name, pattern: re}, nil
}

// DefaultProductAliases covers the catalog names customers habitually
// misspell. Treated as configuration, not contract.
func DefaultProductAliases() []ProductAlias {
	alias, err := NewProductAlias("Gaming Monitor", `\bga?mm?ing\s+monitor\b`)
	if err != nil {
		panic(err)
	}
	return []ProductAlias{alias}
}
