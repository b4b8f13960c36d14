package router

import (
	"math"
	"sort"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/metrics"
)

type candidate struct {
	adapter core.Adapter
	cost    float64
	rate    float64
	p50     float64
	samples int
	score   float64
}

// orderCandidates returns adapters in the order the strategy prefers.
// sort.SliceStable keeps registration order on ties, so ordering is
// deterministic for fresh registries and equal-cost providers.
func orderCandidates(adapters []core.Adapter, strategy core.Strategy, stat func(string) metrics.Stats) []core.Adapter {
	cands := make([]candidate, len(adapters))
	for i, a := range adapters {
		st := stat(a.ID())
		cands[i] = candidate{
			adapter: a,
			cost:    a.EstimateCost().InexactFloat64(),
			rate:    st.SuccessRate,
			p50:     float64(st.P50Ms),
			samples: st.Samples,
		}
	}

	switch strategy {
	case core.StrategyCost:
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].cost < cands[j].cost })
	case core.StrategyQuality:
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].rate > cands[j].rate })
	case core.StrategySpeed:
		sort.SliceStable(cands, func(i, j int) bool { return speedKey(cands[i]) < speedKey(cands[j]) })
	default:
		setBalancedScores(cands)
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].score < cands[j].score })
	}

	out := make([]core.Adapter, len(cands))
	for i, c := range cands {
		out[i] = c.adapter
	}
	return out
}

// speedKey sorts unmeasured providers after every measured one.
func speedKey(c candidate) float64 {
	if c.samples == 0 {
		return math.Inf(1)
	}
	return c.p50
}

// setBalancedScores combines cost, latency and failure rate into one
// score per candidate. Each dimension is min-max normalized across the
// candidate set so no unit dominates; providers without latency samples
// take the worst observed latency.
func setBalancedScores(cands []candidate) {
	worstP50 := 0.0
	for _, c := range cands {
		if c.samples > 0 && c.p50 > worstP50 {
			worstP50 = c.p50
		}
	}

	costs := make([]float64, len(cands))
	lats := make([]float64, len(cands))
	fails := make([]float64, len(cands))
	for i, c := range cands {
		costs[i] = c.cost
		lats[i] = c.p50
		if c.samples == 0 {
			lats[i] = worstP50
		}
		fails[i] = 1 - c.rate
	}

	nc := normalized(costs)
	nl := normalized(lats)
	nf := normalized(fails)
	for i := range cands {
		cands[i].score = nc[i] + nl[i] + nf[i]
	}
}

func normalized(vs []float64) []float64 {
	out := make([]float64, len(vs))
	if len(vs) == 0 {
		return out
	}
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return out
	}
	for i, v := range vs {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
