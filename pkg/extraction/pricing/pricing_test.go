package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shpitdev/palettex/pkg/extraction/pricing"
)

func TestLookupLongestPrefixWins(t *testing.T) {
	t.Parallel()

	mini, ok := pricing.Lookup("gpt-4o-mini-2024-07-18")
	if !ok {
		t.Fatal("Lookup(gpt-4o-mini-2024-07-18) not found")
	}
	full, ok := pricing.Lookup("gpt-4o-2024-08-06")
	if !ok {
		t.Fatal("Lookup(gpt-4o-2024-08-06) not found")
	}
	if !mini.InputPerMillion.LessThan(full.InputPerMillion) {
		t.Fatalf("mini input price %s not below full price %s", mini.InputPerMillion, full.InputPerMillion)
	}
}

func TestCost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		model     string
		in, out   int64
		want      string
		wantFound bool
	}{
		{name: "gemini flash round numbers", model: "gemini-2.5-flash", in: 1_000_000, out: 1_000_000, want: "2.8", wantFound: true},
		{name: "dated snapshot", model: "gemini-2.5-flash-001", in: 1_000_000, out: 0, want: "0.3", wantFound: true},
		{name: "claude sonnet", model: "claude-sonnet-4-20250514", in: 2_000_000, out: 0, want: "6", wantFound: true},
		{name: "unknown model", model: "palette-net-v1", in: 1_000_000, out: 1_000_000, want: "0", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, found := pricing.Lookup(tt.model)
			if found != tt.wantFound {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.model, found, tt.wantFound)
			}
			got := pricing.Cost(tt.model, tt.in, tt.out)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("Cost(%q, %d, %d) = %s, want %s", tt.model, tt.in, tt.out, got, tt.want)
			}
		})
	}
}

func TestEstimateCallOrdersModelsByPrice(t *testing.T) {
	t.Parallel()

	cheap := pricing.EstimateCall("gpt-4o-mini")
	pricey := pricing.EstimateCall("claude-sonnet-4-20250514")
	if cheap.IsZero() || pricey.IsZero() {
		t.Fatalf("estimates zero: mini=%s sonnet=%s", cheap, pricey)
	}
	if !cheap.LessThan(pricey) {
		t.Fatalf("EstimateCall mini=%s not below sonnet=%s", cheap, pricey)
	}
	if !pricing.EstimateCall("self-hosted").IsZero() {
		t.Fatal("unknown model estimate should be zero")
	}
}
