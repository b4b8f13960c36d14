package provider_test

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/provider"
)

type stubAdapter struct{ id string }

func (s *stubAdapter) ID() string { return s.id }

func (s *stubAdapter) Call(ctx context.Context, image core.ImageHandle, maxColors int) (core.ExtractionResult, error) {
	return core.ExtractionResult{ProviderID: s.id, Succeeded: true}, nil
}

func (s *stubAdapter) EstimateCost() decimal.Decimal { return decimal.Zero }

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := provider.NewRegistry()
	for _, id := range []string{"gemini", "openai", "anthropic"} {
		if err := r.Register(&stubAdapter{id: id}); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}

	ids := r.IDs()
	want := []string{"gemini", "openai", "anthropic"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", ids, want)
		}
	}
	all := r.All()
	for i := range want {
		if all[i].ID() != want[i] {
			t.Fatalf("All()[%d] = %s, want %s", i, all[i].ID(), want[i])
		}
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := provider.NewRegistry()
	if err := r.Register(&stubAdapter{id: "gemini"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(&stubAdapter{id: "gemini"}); err == nil {
		t.Fatal("duplicate Register succeeded")
	}
	if err := r.Register(&stubAdapter{id: ""}); err == nil {
		t.Fatal("empty id Register succeeded")
	}

	if _, ok := r.Get("gemini"); !ok {
		t.Fatal("Get(gemini) missed")
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatal("Get(nope) hit")
	}
}

func TestTrimToJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare object", in: `{"colors":[]}`, want: `{"colors":[]}`},
		{name: "fenced", in: "```json\n{\"colors\":[]}\n```", want: `{"colors":[]}`},
		{name: "fence without language", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around object", in: "Here is the palette:\n{\"a\":1}\nHope that helps!", want: `{"a":1}`},
		{name: "whitespace", in: "  \n {\"a\":1} \n", want: `{"a":1}`},
		{name: "no object at all", in: "sorry, cannot help", want: "sorry, cannot help"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := provider.TrimToJSON(tt.in); got != tt.want {
				t.Fatalf("TrimToJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestKindFromStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   core.ErrorKind
	}{
		{status: 429, want: core.KindRateLimited},
		{status: 408, want: core.KindTimeout},
		{status: 504, want: core.KindTimeout},
		{status: 500, want: core.KindUnavailable},
		{status: 503, want: core.KindUnavailable},
		{status: 401, want: core.KindUnavailable},
		{status: 403, want: core.KindUnavailable},
		{status: 400, want: core.KindInvalidResponse},
		{status: 422, want: core.KindInvalidResponse},
		{status: 200, want: core.KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			t.Parallel()
			if got := provider.KindFromStatus(tt.status); got != tt.want {
				t.Fatalf("KindFromStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestRateLimitHint(t *testing.T) {
	t.Parallel()

	if !provider.RateLimitHint("RESOURCE_EXHAUSTED: Quota exceeded for model") {
		t.Fatal("quota message not recognized")
	}
	if !provider.RateLimitHint("Too Many Requests") {
		t.Fatal("429 text not recognized")
	}
	if provider.RateLimitHint("model not found") {
		t.Fatal("unrelated message flagged as rate limit")
	}
}

func TestDataURL(t *testing.T) {
	t.Parallel()

	img := core.NewImageHandle([]byte("II*\x00tiny tiff"))
	got := provider.DataURL(img)
	if !strings.HasPrefix(got, "data:image/tiff;base64,") {
		t.Fatalf("DataURL = %q, want image/tiff data URL", got)
	}
}

func TestExtractionPromptMentionsBudgetAndShape(t *testing.T) {
	t.Parallel()

	p := provider.ExtractionPrompt(7)
	for _, want := range []string{"up to 7", `"colors"`, `"overall_confidence"`, `"prominence_pct"`, "ONLY the JSON object"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
