// Package orchestrator runs every configured extractor for a request
// concurrently and streams each outcome the moment it lands, so callers
// can paint the fastest extractor's colors without waiting for the
// slowest. Exactly one terminal event closes the stream, carrying the
// aggregated palette and the request's final state.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/palettex/pkg/extraction/aggregate"
	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// EventKind labels entries on a request's event stream.
type EventKind string

const (
	// EventExtractorComplete is emitted once per finished extractor, in
	// actual completion order.
	EventExtractorComplete EventKind = "extractor_complete"
	// EventRequestComplete is the terminal event: exactly one per run,
	// always last.
	EventRequestComplete EventKind = "request_complete"
)

// Event is one entry on the stream returned by Run.
type Event struct {
	Kind      EventKind
	RequestID string
	State     core.RequestState

	// Result is the finished extractor's outcome, set on
	// extractor_complete events. Failed results ride the stream too;
	// a degraded extractor is information, not an abort.
	Result *core.ExtractionResult

	// Results collects every extractor that finished before the run
	// settled. Set on the terminal event only.
	Results []core.ExtractionResult
	// Palette is the aggregated output. Nil when the request failed.
	Palette *core.AggregatedPalette
	// Err is non-nil only in the failed state and is a
	// *core.AllProvidersFailedError naming every attempt.
	Err error
}

// Options tunes request runs.
type Options struct {
	// Deadline bounds one request end to end. When it elapses before
	// every extractor finishes, stragglers are canceled and the run
	// settles with the results already streamed. 0 means no deadline.
	Deadline time.Duration

	// Aggregate tunes palette dedup and dominant-color selection.
	Aggregate aggregate.Options
}

// Orchestrator fans requests out to extractors. Safe for concurrent
// use; every Run is independent.
type Orchestrator struct {
	opts Options
	log  zerolog.Logger
}

func New(opts Options, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		opts: opts,
		log:  log.With().Str("component", "orchestrator").Logger(),
	}
}

// Run starts one request and returns its event stream. The channel is
// buffered for the whole run and closed after the terminal event, so a
// consumer that abandons the stream never blocks the producer.
func (o *Orchestrator) Run(ctx context.Context, req core.ExtractionRequest, extractors []core.Extractor) (<-chan Event, error) {
	req = req.Normalized()
	if req.Image.Empty() {
		return nil, fmt.Errorf("orchestrate: request has no image")
	}
	if len(extractors) == 0 {
		return nil, fmt.Errorf("orchestrate: no extractors configured")
	}
	events := make(chan Event, len(extractors)+1)
	go o.run(ctx, req, extractors, events)
	return events, nil
}

type completion struct {
	idx int
	res core.ExtractionResult
}

func (o *Orchestrator) run(ctx context.Context, req core.ExtractionRequest, extractors []core.Extractor, events chan<- Event) {
	defer close(events)

	requestID := uuid.NewString()
	start := time.Now()
	log := o.log.With().
		Str("request_id", requestID).
		Str("image", req.Image.Hash()).
		Logger()

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if o.opts.Deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.opts.Deadline)
	}
	defer cancel()

	// Buffered to the extractor count so a straggler finishing after
	// the deadline can always hand off its result and exit.
	done := make(chan completion, len(extractors))
	var g errgroup.Group
	for i, ext := range extractors {
		g.Go(func() error {
			res := ext.Extract(runCtx, req)
			if res.ProviderID == "" {
				res.ProviderID = ext.ID()
			}
			done <- completion{idx: i, res: res}
			return nil
		})
	}
	go func() {
		_ = g.Wait() // failures are data on the results
		close(done)
	}()

	finished := make([]core.ExtractionResult, 0, len(extractors))
	seen := make([]bool, len(extractors))
	expired := false

collect:
	for {
		select {
		case c, ok := <-done:
			if !ok {
				break collect
			}
			seen[c.idx] = true
			finished = append(finished, c.res)
			log.Debug().
				Str("extractor", extractors[c.idx].ID()).
				Str("provider", c.res.ProviderID).
				Bool("succeeded", c.res.Succeeded).
				Str("error_kind", string(c.res.ErrorKind)).
				Int("colors", len(c.res.Colors)).
				Int64("latency_ms", c.res.LatencyMs).
				Msg("extractor complete")
			res := c.res
			events <- Event{
				Kind:      EventExtractorComplete,
				RequestID: requestID,
				State:     core.StateRunning,
				Result:    &res,
			}
		case <-runCtx.Done():
			// Deadline or caller cancellation: settle with what exists.
			expired = true
			break collect
		}
	}

	state, palette, err := o.settle(req, extractors, finished, seen, expired)
	log.Info().
		Str("state", string(state)).
		Int("extractors", len(extractors)).
		Int("finished", len(finished)).
		Dur("elapsed", time.Since(start)).
		Msg("request settled")
	events <- Event{
		Kind:      EventRequestComplete,
		RequestID: requestID,
		State:     state,
		Results:   finished,
		Palette:   palette,
		Err:       err,
	}
}

// settle derives the terminal state. Any success yields a palette; an
// expired deadline with unfinished extractors downgrades complete to
// partially_complete; zero successes fail the request with every
// attempt on record.
func (o *Orchestrator) settle(req core.ExtractionRequest, extractors []core.Extractor, finished []core.ExtractionResult, seen []bool, expired bool) (core.RequestState, *core.AggregatedPalette, error) {
	successes := 0
	for _, res := range finished {
		if res.Succeeded {
			successes++
		}
	}

	if successes == 0 {
		attempts := make([]core.AttemptFailure, 0, len(extractors))
		for _, res := range finished {
			if len(res.Failures) > 0 {
				attempts = append(attempts, res.Failures...)
				continue
			}
			attempts = append(attempts, core.AttemptFailure{
				Provider: res.ProviderID,
				Kind:     res.ErrorKind,
				Msg:      res.ErrorMsg,
			})
		}
		for i, ext := range extractors {
			if !seen[i] {
				attempts = append(attempts, core.AttemptFailure{
					Provider: ext.ID(),
					Kind:     core.KindTimeout,
					Msg:      "canceled before completion",
				})
			}
		}
		return core.StateFailed, nil, &core.AllProvidersFailedError{Attempts: attempts}
	}

	aggOpts := o.opts.Aggregate
	aggOpts.MaxColors = req.MaxColors
	palette := aggregate.Aggregate(finished, aggOpts)

	state := core.StateComplete
	if expired && len(finished) < len(extractors) {
		state = core.StatePartiallyComplete
	}
	return state, &palette, nil
}
