// Package aggregate merges extractor results into one deduplicated
// palette. Tokens are visited most-trusted first, so the highest
// confidence color wins each perceptual cluster and reruns over the same
// input produce identical output.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// DefaultThreshold is the CIEDE2000 distance below which two colors
// count as the same. Just-noticeable difference sits near 2.3.
const DefaultThreshold = 2.0

// DefaultDominantCount bounds the dominant hex list.
const DefaultDominantCount = 3

// Options tunes aggregation.
type Options struct {
	// Threshold is the minimum CIEDE2000 distance between surviving
	// tokens. <=0 means DefaultThreshold.
	Threshold float64
	// DominantCount caps the dominant list. <=0 means DefaultDominantCount.
	DominantCount int
	// MaxColors truncates the final token list when >0.
	MaxColors int
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.DominantCount <= 0 {
		o.DominantCount = DefaultDominantCount
	}
	return o
}

// sourced is one raw token tagged with the extractor that reported it.
type sourced struct {
	token  core.RawColorToken
	source string
	col    colorful.Color
}

// Aggregate flattens the tokens of all successful results and greedily
// deduplicates them. A candidate merges into its nearest accepted token
// when closer than the threshold, otherwise it is accepted as distinct,
// so surviving tokens are always pairwise at least the threshold apart.
func Aggregate(results []core.ExtractionResult, opts Options) core.AggregatedPalette {
	opts = opts.withDefaults()

	flat := flatten(results)
	accepted := make([]core.AggregatedColorToken, 0, len(flat))
	cols := make([]colorful.Color, 0, len(flat))

	for _, cand := range flat {
		nearest := -1
		nearestDist := math.MaxFloat64
		for i, c := range cols {
			if d := cand.col.DistanceCIEDE2000(c); d < nearestDist {
				nearestDist = d
				nearest = i
			}
		}
		if nearest >= 0 && nearestDist < opts.Threshold {
			mergeInto(&accepted[nearest], cand)
			continue
		}
		accepted = append(accepted, newAggregated(cand))
		cols = append(cols, cand.col)
	}

	if opts.MaxColors > 0 && len(accepted) > opts.MaxColors {
		accepted = accepted[:opts.MaxColors]
	}

	return core.AggregatedPalette{
		Tokens:            accepted,
		Dominant:          dominantHexes(accepted, opts.DominantCount),
		OverallConfidence: overallConfidence(accepted),
	}
}

// flatten collects the tokens of successful results in deterministic
// order: confidence desc, then source id asc, then hex asc.
func flatten(results []core.ExtractionResult) []sourced {
	var flat []sourced
	for _, res := range results {
		if !res.Succeeded {
			continue
		}
		for _, t := range res.Colors {
			col, err := colorful.Hex(strings.ToLower(t.Hex))
			if err != nil {
				continue
			}
			flat = append(flat, sourced{token: t, source: res.ProviderID, col: col})
		}
	}
	sort.SliceStable(flat, func(i, j int) bool {
		if flat[i].token.Confidence != flat[j].token.Confidence {
			return flat[i].token.Confidence > flat[j].token.Confidence
		}
		if flat[i].source != flat[j].source {
			return flat[i].source < flat[j].source
		}
		return flat[i].token.Hex < flat[j].token.Hex
	})
	return flat
}

func newAggregated(s sourced) core.AggregatedColorToken {
	t := s.token
	agg := core.AggregatedColorToken{
		Hex:        t.Hex,
		Confidence: t.Confidence,
		Intent:     t.Intent,
		UsageHints: append([]string(nil), t.UsageHints...),
		Provenance: map[string]float64{s.source: t.Confidence},
		MergedFrom: 1,
	}
	if p, ok := t.Prominence(); ok {
		agg.ProminencePct = &p
	}
	return agg
}

// mergeInto folds a duplicate into an accepted token: the higher
// confidence instance keeps its hex, confidence is the max of the two,
// and the duplicate's source joins the provenance instead of being lost.
func mergeInto(agg *core.AggregatedColorToken, s sourced) {
	t := s.token
	if t.Confidence > agg.Confidence {
		agg.Confidence = t.Confidence
		agg.Hex = t.Hex
	}
	if prev, ok := agg.Provenance[s.source]; !ok || t.Confidence > prev {
		agg.Provenance[s.source] = t.Confidence
	}
	agg.MergedFrom++
	if agg.Intent == "" {
		agg.Intent = t.Intent
	}
	if p, ok := t.Prominence(); ok {
		if agg.ProminencePct == nil || p > *agg.ProminencePct {
			agg.ProminencePct = &p
		}
	}
	agg.UsageHints = unionHints(agg.UsageHints, t.UsageHints)
}

func unionHints(dst, src []string) []string {
	for _, h := range src {
		seen := false
		for _, existing := range dst {
			if existing == h {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, h)
		}
	}
	return dst
}

// dominantHexes ranks tokens by coverage when known, confidence
// otherwise, with ties broken by hex so output is stable.
func dominantHexes(tokens []core.AggregatedColorToken, n int) []string {
	if len(tokens) == 0 {
		return nil
	}
	ranked := append([]core.AggregatedColorToken(nil), tokens...)
	sort.SliceStable(ranked, func(i, j int) bool {
		ki, kj := dominanceKey(ranked[i]), dominanceKey(ranked[j])
		if ki != kj {
			return ki > kj
		}
		return ranked[i].Hex < ranked[j].Hex
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, t := range ranked {
		out[i] = t.Hex
	}
	return out
}

func dominanceKey(t core.AggregatedColorToken) float64 {
	if t.ProminencePct != nil {
		return *t.ProminencePct
	}
	return t.Confidence
}

// overallConfidence is the prominence-weighted mean of token
// confidences. Tokens without coverage weigh 1 so they still count.
func overallConfidence(tokens []core.AggregatedColorToken) float64 {
	if len(tokens) == 0 {
		return 0
	}
	num, den := 0.0, 0.0
	for _, t := range tokens {
		w := 1.0
		if t.ProminencePct != nil && *t.ProminencePct > 0 {
			w = *t.ProminencePct
		}
		num += w * t.Confidence
		den += w
	}
	if den == 0 {
		return 0
	}
	v := num / den
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
