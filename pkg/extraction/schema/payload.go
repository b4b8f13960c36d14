// Package schema defines the JSON payload every provider adapter is
// instructed to return and validates it into domain tokens. Keeping the
// wire shape in one place means a provider swap never changes what the
// rest of the pipeline sees.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// Payload is the JSON object providers are prompted to produce.
type Payload struct {
	Colors            []PayloadColor `json:"colors"`
	OverallConfidence float64        `json:"overall_confidence"`
}

// PayloadColor is one color entry as serialized on the wire.
type PayloadColor struct {
	Hex           string   `json:"hex"`
	Confidence    float64  `json:"confidence"`
	Intent        string   `json:"intent,omitempty"`
	ProminencePct *float64 `json:"prominence_pct,omitempty"`
	UsageHints    []string `json:"usage_hints,omitempty"`
}

var hexRe = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// NormalizeHex canonicalizes a hex color to uppercase #RRGGBB. The second
// return is false when the input is not a six-digit hex color.
func NormalizeHex(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if !hexRe.MatchString(s) {
		return "", false
	}
	return "#" + strings.ToUpper(strings.TrimPrefix(s, "#")), true
}

// ParseTokens decodes and validates a provider payload. Entries with
// invalid hex are dropped, confidence clamps to [0,1], prominence to
// [0,100], and the list truncates to maxColors in listed order when
// maxColors > 0. A payload that does not decode, or decodes to zero valid
// tokens, is an error; adapters classify it as an invalid response.
func ParseTokens(data []byte, maxColors int) ([]core.RawColorToken, float64, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, 0, fmt.Errorf("parse palette payload: %w", err)
	}
	return FromPayload(p, maxColors)
}

// FromPayload validates an already-decoded payload. See ParseTokens.
func FromPayload(p Payload, maxColors int) ([]core.RawColorToken, float64, error) {
	tokens := make([]core.RawColorToken, 0, len(p.Colors))
	for _, c := range p.Colors {
		hex, ok := NormalizeHex(c.Hex)
		if !ok {
			continue
		}
		tok := core.RawColorToken{
			Hex:        hex,
			Confidence: clamp(c.Confidence, 0, 1),
			Intent:     core.NormalizeIntent(c.Intent),
			UsageHints: normalizeHints(c.UsageHints),
		}
		if c.ProminencePct != nil {
			pct := clamp(*c.ProminencePct, 0, 100)
			tok.ProminencePct = &pct
		}
		tokens = append(tokens, tok)
		if maxColors > 0 && len(tokens) == maxColors {
			break
		}
	}
	if len(tokens) == 0 {
		return nil, 0, fmt.Errorf("no valid color tokens in payload (%d entries)", len(p.Colors))
	}
	overall := clamp(p.OverallConfidence, 0, 1)
	if overall == 0 {
		// Providers occasionally omit the overall figure; fall back to
		// the mean token confidence rather than reporting zero trust.
		overall = meanConfidence(tokens)
	}
	return tokens, overall, nil
}

func normalizeHints(hints []string) []string {
	if len(hints) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(hints))
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func meanConfidence(tokens []core.RawColorToken) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float64(len(tokens))
}
