package schema_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/schema"
)

func TestNormalizeHex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "#FF5733", want: "#FF5733", wantOK: true},
		{in: "ff5733", want: "#FF5733", wantOK: true},
		{in: "  #a1B2c3 ", want: "#A1B2C3", wantOK: true},
		{in: "#FFF", wantOK: false},
		{in: "#FF57331", wantOK: false},
		{in: "red", wantOK: false},
		{in: "", wantOK: false},
		{in: "#GG5733", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := schema.NormalizeHex(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("NormalizeHex(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("NormalizeHex(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTokens(t *testing.T) {
	t.Parallel()

	in := []byte(`{
		"colors": [
			{"hex": "ff5733", "confidence": 0.9, "intent": "brand", "prominence_pct": 42.5, "usage_hints": ["Vivid", "vivid", " "]},
			{"hex": "#1A2B3C", "confidence": 1.7, "intent": "mystery"},
			{"hex": "not-a-color", "confidence": 0.8}
		],
		"overall_confidence": 0.85
	}`)

	tokens, overall, err := schema.ParseTokens(in, 0)
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if overall != 0.85 {
		t.Fatalf("overall = %v, want 0.85", overall)
	}

	prom := 42.5
	want := []core.RawColorToken{
		{Hex: "#FF5733", Confidence: 0.9, Intent: core.IntentPrimary, ProminencePct: &prom, UsageHints: []string{"vivid"}},
		{Hex: "#1A2B3C", Confidence: 1, Intent: core.IntentAccent},
	}
	if diff := cmp.Diff(want, tokens); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTokensTruncatesInListedOrder(t *testing.T) {
	t.Parallel()

	in := []byte(`{"colors": [
		{"hex": "#111111", "confidence": 0.1},
		{"hex": "#222222", "confidence": 0.9},
		{"hex": "#333333", "confidence": 0.5}
	], "overall_confidence": 0.5}`)

	tokens, _, err := schema.ParseTokens(in, 2)
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if len(tokens) != 2 || tokens[0].Hex != "#111111" || tokens[1].Hex != "#222222" {
		t.Fatalf("tokens = %+v, want first two in listed order", tokens)
	}
}

func TestParseTokensErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantSub string
	}{
		{name: "not json", in: `palette: orange and teal`, wantSub: "parse palette payload"},
		{name: "empty colors", in: `{"colors": [], "overall_confidence": 0.9}`, wantSub: "no valid color tokens"},
		{name: "all invalid hex", in: `{"colors": [{"hex": "blue", "confidence": 0.9}], "overall_confidence": 0.9}`, wantSub: "no valid color tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := schema.ParseTokens([]byte(tt.in), 0)
			if err == nil {
				t.Fatal("ParseTokens succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q missing %q", err, tt.wantSub)
			}
		})
	}
}

func TestParseTokensOverallFallsBackToMean(t *testing.T) {
	t.Parallel()

	in := []byte(`{"colors": [
		{"hex": "#111111", "confidence": 0.4},
		{"hex": "#EEEEEE", "confidence": 0.8}
	]}`)

	_, overall, err := schema.ParseTokens(in, 0)
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if overall < 0.59 || overall > 0.61 {
		t.Fatalf("overall = %v, want mean 0.6", overall)
	}
}

func TestParseTokensKeepsProminenceAbsence(t *testing.T) {
	t.Parallel()

	in := []byte(`{"colors": [
		{"hex": "#111111", "confidence": 0.4},
		{"hex": "#EEEEEE", "confidence": 0.8, "prominence_pct": 0}
	], "overall_confidence": 0.6}`)

	tokens, _, err := schema.ParseTokens(in, 0)
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if _, reported := tokens[0].Prominence(); reported {
		t.Fatal("token 0 reports prominence, want absent")
	}
	if pct, reported := tokens[1].Prominence(); !reported || pct != 0 {
		t.Fatalf("token 1 prominence = (%v, %v), want explicit 0", pct, reported)
	}
}
