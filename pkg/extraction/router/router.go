// Package router selects a provider order per request and walks the
// fallback chain until one provider succeeds. Rate-limited providers are
// retried in place with exponential backoff; every other failure advances
// to the next candidate. Total failure is reported as a synthetic failed
// result, never a Go error, so callers can still fall back to local
// extraction.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/shpitdev/palettex/pkg/extraction/cache"
	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/metrics"
)

// Options tunes the fallback chain.
type Options struct {
	// MaxAttempts caps calls against a single adapter. Only rate-limited
	// failures are retried; anything else advances immediately.
	MaxAttempts int

	// RequestTimeout bounds each individual attempt.
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all providers. Set to <=0 to disable.
	RateLimitRPS float64

	// BackoffInitial is the first sleep after a rate-limited attempt.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64

	// CacheTTL for stored successes; 0 means the cache default.
	CacheTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 8 * time.Second
	}
	if o.BackoffJitterFrac <= 0 {
		o.BackoffJitterFrac = 0.2
	}
	return o
}

// Router executes the provider fallback chain. The cache store and the
// metrics registry are shared with the rest of the service.
type Router struct {
	opts    Options
	store   cache.Store
	metrics *metrics.Registry
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New builds a Router. store and reg must be non-nil.
func New(store cache.Store, reg *metrics.Registry, opts Options, log zerolog.Logger) *Router {
	opts = opts.withDefaults()
	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return &Router{
		opts:    opts,
		store:   store,
		metrics: reg,
		limiter: limiter,
		log:     log.With().Str("component", "router").Logger(),
	}
}

// Route tries adapters in strategy order until one succeeds. A fresh
// cached success short-circuits with zero network calls. It never returns
// a Go error: total failure comes back as a failed result whose Failures
// list names every attempt.
func (r *Router) Route(ctx context.Context, req core.ExtractionRequest, adapters []core.Adapter, strategy core.Strategy) core.ExtractionResult {
	req = req.Normalized()
	if len(adapters) == 0 {
		return core.FailedResult("", core.KindAllProvidersFailed, "no providers available")
	}
	ordered := orderCandidates(adapters, strategy, r.metrics.Snapshot)

	var failures []core.AttemptFailure
	lastKind := core.KindUnavailable

	for _, a := range ordered {
		key := cache.Key(req.Image.Hash(), req.MaxColors, a.ID())
		if res, ok := r.store.Get(key); ok {
			r.log.Debug().Str("provider", a.ID()).Str("image", req.Image.Hash()).Msg("cache hit")
			return res
		}

		for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return r.aborted(failures, err)
			}
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					return r.aborted(failures, err)
				}
			}

			res, err := r.callOnce(ctx, a, req)
			if err == nil {
				r.store.Put(key, res, r.opts.CacheTTL)
				return res
			}

			kind := core.KindOf(err)
			lastKind = kind
			failures = append(failures, core.AttemptFailure{Provider: a.ID(), Kind: kind, Msg: err.Error()})
			r.log.Warn().
				Str("provider", a.ID()).
				Int("attempt", attempt+1).
				Str("kind", string(kind)).
				Err(err).
				Msg("provider call failed")

			if ctx.Err() != nil {
				return r.aborted(failures, ctx.Err())
			}
			if kind != core.KindRateLimited || attempt == r.opts.MaxAttempts-1 {
				break
			}
			if err := r.backoff(ctx, attempt); err != nil {
				return r.aborted(failures, err)
			}
		}
	}

	chainErr := &core.AllProvidersFailedError{Attempts: failures}
	res := core.FailedResult("", lastKind, chainErr.Error())
	res.Failures = failures
	return res
}

// callOnce runs one attempt with its own timeout and records the outcome.
func (r *Router) callOnce(ctx context.Context, a core.Adapter, req core.ExtractionRequest) (core.ExtractionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	res, err := a.Call(callCtx, req.Image, req.MaxColors)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		r.metrics.RecordFailure(a.ID(), latency)
		return core.ExtractionResult{}, err
	}
	if !res.Succeeded {
		r.metrics.RecordFailure(a.ID(), latency)
		return core.ExtractionResult{}, core.NewProviderError(a.ID(), core.KindInvalidResponse,
			errors.New("adapter returned a failed result without an error"))
	}
	res.ProviderID = a.ID()
	res.LatencyMs = latency
	r.metrics.RecordSuccess(a.ID(), latency, res.CostEstimate)
	return res, nil
}

// aborted reports parent-context cancellation as a timeout-kind result so
// downstream aggregation treats the chain like any other timed-out source.
func (r *Router) aborted(failures []core.AttemptFailure, err error) core.ExtractionResult {
	res := core.FailedResult("", core.KindTimeout, fmt.Sprintf("extraction aborted: %v", err))
	res.Failures = failures
	return res
}

func (r *Router) backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(backoffSleep(r.opts.BackoffInitial, r.opts.BackoffMax, r.opts.BackoffJitterFrac, attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	// Apply +/- jitterFrac.
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
