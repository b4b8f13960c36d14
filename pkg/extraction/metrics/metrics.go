// Package metrics tracks per-provider routing outcomes: attempt counts,
// latency percentiles over a sliding sample window, and cumulative
// estimated spend. The router records every attempt; strategy ordering
// reads snapshots.
package metrics

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// latencyWindow bounds the per-provider latency sample ring.
const latencyWindow = 512

// Stats is a point-in-time snapshot for one provider.
type Stats struct {
	Provider string `json:"provider"`
	Success  int64  `json:"success"`
	Failure  int64  `json:"failure"`
	// SuccessRate is Laplace smoothed: (s+1)/(s+f+2). A provider with no
	// history rates 0.5 instead of an unearned 0 or 1.
	SuccessRate float64 `json:"success_rate"`
	P50Ms       int64   `json:"p50_ms"`
	P95Ms       int64   `json:"p95_ms"`
	// Samples is how many latency observations back the percentiles,
	// at most the window size.
	Samples        int             `json:"samples"`
	CumulativeCost decimal.Decimal `json:"cumulative_cost"`
}

// Registry aggregates stats for all providers. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*providerStats
}

type providerStats struct {
	success int64
	failure int64
	cost    decimal.Decimal
	ring    [latencyWindow]int64
	n       int // filled samples, caps at latencyWindow
	next    int // ring write position
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*providerStats)}
}

func (r *Registry) stats(provider string) *providerStats {
	s, ok := r.providers[provider]
	if !ok {
		s = &providerStats{cost: decimal.Zero}
		r.providers[provider] = s
	}
	return s
}

// RecordSuccess registers one successful call with its latency and cost.
func (r *Registry) RecordSuccess(provider string, latencyMs int64, cost decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats(provider)
	s.success++
	s.cost = s.cost.Add(cost)
	s.observe(latencyMs)
}

// RecordFailure registers one failed call attempt with its latency.
func (r *Registry) RecordFailure(provider string, latencyMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats(provider)
	s.failure++
	s.observe(latencyMs)
}

func (s *providerStats) observe(latencyMs int64) {
	s.ring[s.next] = latencyMs
	s.next = (s.next + 1) % latencyWindow
	if s.n < latencyWindow {
		s.n++
	}
}

// Snapshot returns the current stats for one provider. Unknown providers
// return a zero snapshot with the smoothed 0.5 success rate.
func (r *Registry) Snapshot(provider string) Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.providers[provider]
	if !ok {
		return Stats{Provider: provider, SuccessRate: 0.5, CumulativeCost: decimal.Zero}
	}
	return s.snapshot(provider)
}

// All returns snapshots for every provider seen so far, sorted by id.
func (r *Registry) All() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stats, 0, len(r.providers))
	for id, s := range r.providers {
		out = append(out, s.snapshot(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func (s *providerStats) snapshot(provider string) Stats {
	st := Stats{
		Provider:       provider,
		Success:        s.success,
		Failure:        s.failure,
		SuccessRate:    float64(s.success+1) / float64(s.success+s.failure+2),
		Samples:        s.n,
		CumulativeCost: s.cost,
	}
	if s.n > 0 {
		sorted := make([]int64, s.n)
		copy(sorted, s.ring[:s.n])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		st.P50Ms = percentile(sorted, 50)
		st.P95Ms = percentile(sorted, 95)
	}
	return st
}

// percentile is nearest-rank over an ascending-sorted sample.
func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct*len(sorted) + 99) / 100
	if idx < 1 {
		idx = 1
	}
	if idx > len(sorted) {
		idx = len(sorted)
	}
	return sorted[idx-1]
}
