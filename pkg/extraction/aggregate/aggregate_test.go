package aggregate_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/shpitdev/palettex/pkg/extraction/aggregate"
	"github.com/shpitdev/palettex/pkg/extraction/core"
)

func okResult(provider string, tokens ...core.RawColorToken) core.ExtractionResult {
	return core.ExtractionResult{
		ProviderID: provider,
		Colors:     tokens,
		Succeeded:  true,
	}
}

func tok(hex string, conf float64) core.RawColorToken {
	return core.RawColorToken{Hex: hex, Confidence: conf}
}

func promTok(hex string, conf, prom float64) core.RawColorToken {
	return core.RawColorToken{Hex: hex, Confidence: conf, ProminencePct: &prom}
}

func TestAggregateMergesNearIdenticalAcrossProviders(t *testing.T) {
	t.Parallel()

	got := aggregate.Aggregate([]core.ExtractionResult{
		okResult("openai", core.RawColorToken{Hex: "#FF5733", Confidence: 0.9, UsageHints: []string{"vivid"}}),
		okResult("gemini", core.RawColorToken{Hex: "#FF5734", Confidence: 0.7, Intent: core.IntentPrimary, UsageHints: []string{"vivid", "warm"}}),
	}, aggregate.Options{})

	if len(got.Tokens) != 1 {
		t.Fatalf("expected one merged token, got %+v", got.Tokens)
	}
	m := got.Tokens[0]
	if m.Hex != "#FF5733" {
		t.Fatalf("higher-confidence hex must win: got %q", m.Hex)
	}
	if m.Confidence != 0.9 {
		t.Fatalf("confidence must be the max: got %v", m.Confidence)
	}
	if m.MergedFrom != 2 {
		t.Fatalf("want MergedFrom 2, got %d", m.MergedFrom)
	}
	if m.Provenance["openai"] != 0.9 || m.Provenance["gemini"] != 0.7 {
		t.Fatalf("provenance must keep both sources: %+v", m.Provenance)
	}
	if m.Intent != core.IntentPrimary {
		t.Fatalf("empty intent should adopt the duplicate's: got %q", m.Intent)
	}
	wantHints := []string{"vivid", "warm"}
	if diff := cmp.Diff(wantHints, m.UsageHints); diff != "" {
		t.Fatalf("hints union mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateConfidenceNeverBelowInputs(t *testing.T) {
	t.Parallel()

	got := aggregate.Aggregate([]core.ExtractionResult{
		okResult("a", tok("#3366CC", 0.55)),
		okResult("b", tok("#3366CD", 0.80)),
		okResult("c", tok("#3366CE", 0.62)),
	}, aggregate.Options{})

	if len(got.Tokens) != 1 {
		t.Fatalf("expected one merged token, got %+v", got.Tokens)
	}
	if got.Tokens[0].Confidence != 0.80 {
		t.Fatalf("merged confidence must equal the max input, got %v", got.Tokens[0].Confidence)
	}
	if got.Tokens[0].MergedFrom != 3 {
		t.Fatalf("want MergedFrom 3, got %d", got.Tokens[0].MergedFrom)
	}
}

func TestAggregateThresholdMonotonicity(t *testing.T) {
	t.Parallel()

	input := []core.ExtractionResult{
		okResult("a",
			tok("#FF0000", 0.9),
			tok("#FA0A05", 0.8),
			tok("#F01810", 0.7),
			tok("#00FF00", 0.9),
			tok("#00E810", 0.6),
			tok("#0000FF", 0.9),
		),
	}

	prev := -1
	for _, threshold := range []float64{0.5, 2, 8, 25, 80} {
		got := aggregate.Aggregate(input, aggregate.Options{Threshold: threshold})
		n := len(got.Tokens)
		if prev >= 0 && n > prev {
			t.Fatalf("raising threshold to %v increased tokens from %d to %d", threshold, prev, n)
		}
		prev = n
	}
}

func TestAggregateSurvivorsArePairwiseDistinct(t *testing.T) {
	t.Parallel()

	const threshold = 6.0
	got := aggregate.Aggregate([]core.ExtractionResult{
		okResult("a", tok("#FF0000", 0.9), tok("#EE2211", 0.8), tok("#00AA00", 0.7)),
		okResult("b", tok("#FF0400", 0.85), tok("#0000EE", 0.8), tok("#101010", 0.6)),
	}, aggregate.Options{Threshold: threshold})

	for i := 0; i < len(got.Tokens); i++ {
		ci, err := colorful.Hex(strings.ToLower(got.Tokens[i].Hex))
		if err != nil {
			t.Fatalf("parse %q: %v", got.Tokens[i].Hex, err)
		}
		for j := i + 1; j < len(got.Tokens); j++ {
			cj, err := colorful.Hex(strings.ToLower(got.Tokens[j].Hex))
			if err != nil {
				t.Fatalf("parse %q: %v", got.Tokens[j].Hex, err)
			}
			if d := ci.DistanceCIEDE2000(cj); d < threshold {
				t.Fatalf("tokens %q and %q are %v apart, below threshold %v", got.Tokens[i].Hex, got.Tokens[j].Hex, d, threshold)
			}
		}
	}
}

func TestAggregateSkipsFailedResultsAndBadHex(t *testing.T) {
	t.Parallel()

	failed := core.FailedResult("gemini", core.KindUnavailable, "scripted")
	failed.Colors = []core.RawColorToken{tok("#123456", 0.99)}

	got := aggregate.Aggregate([]core.ExtractionResult{
		failed,
		okResult("local", tok("not-a-hex", 0.9), tok("#654321", 0.5)),
	}, aggregate.Options{})

	if len(got.Tokens) != 1 || got.Tokens[0].Hex != "#654321" {
		t.Fatalf("expected only the valid token of the successful result, got %+v", got.Tokens)
	}
}

func TestAggregateTruncatesToMaxColors(t *testing.T) {
	t.Parallel()

	got := aggregate.Aggregate([]core.ExtractionResult{
		okResult("a",
			tok("#FF0000", 0.9),
			tok("#00FF00", 0.8),
			tok("#0000FF", 0.7),
			tok("#FFFF00", 0.6),
		),
	}, aggregate.Options{MaxColors: 2})

	if len(got.Tokens) != 2 {
		t.Fatalf("want 2 tokens after truncation, got %d", len(got.Tokens))
	}
	if got.Tokens[0].Hex != "#FF0000" || got.Tokens[1].Hex != "#00FF00" {
		t.Fatalf("truncation must keep the most trusted tokens, got %+v", got.Tokens)
	}
}

func TestDominantRanksByProminenceThenConfidence(t *testing.T) {
	t.Parallel()

	got := aggregate.Aggregate([]core.ExtractionResult{
		okResult("a",
			promTok("#111111", 0.5, 40),
			promTok("#EE0000", 0.9, 12),
			tok("#00BB00", 0.98),
			promTok("#FFFFFF", 0.7, 40),
		),
	}, aggregate.Options{})

	want := []string{"#111111", "#FFFFFF", "#EE0000"}
	if diff := cmp.Diff(want, got.Dominant); diff != "" {
		t.Fatalf("dominant mismatch (-want +got):\n%s", diff)
	}
}

func TestOverallConfidenceIsProminenceWeighted(t *testing.T) {
	t.Parallel()

	got := aggregate.Aggregate([]core.ExtractionResult{
		okResult("a",
			promTok("#FF0000", 1.0, 90),
			promTok("#0000FF", 0.0, 10),
		),
	}, aggregate.Options{})
	if got.OverallConfidence < 0.89 || got.OverallConfidence > 0.91 {
		t.Fatalf("want prominence-weighted 0.9, got %v", got.OverallConfidence)
	}

	got = aggregate.Aggregate([]core.ExtractionResult{
		okResult("a", tok("#FF0000", 0.8), tok("#0000FF", 0.6)),
	}, aggregate.Options{})
	if got.OverallConfidence < 0.69 || got.OverallConfidence > 0.71 {
		t.Fatalf("want unweighted mean 0.7, got %v", got.OverallConfidence)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	t.Parallel()

	build := func() []core.ExtractionResult {
		return []core.ExtractionResult{
			okResult("gemini", promTok("#FF5733", 0.9, 30), tok("#222222", 0.9)),
			okResult("openai", tok("#FF5734", 0.9), promTok("#FAFAFA", 0.8, 45)),
			okResult("local", promTok("#FF5735", 0.9, 28), tok("#1F1F1F", 0.7)),
		}
	}

	first := aggregate.Aggregate(build(), aggregate.Options{})
	second := aggregate.Aggregate(build(), aggregate.Options{})
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("same input must aggregate identically (-first +second):\n%s", diff)
	}
	if len(first.Tokens) == 0 || len(first.Dominant) == 0 {
		t.Fatalf("sanity: aggregation should produce tokens, got %+v", first)
	}
}
