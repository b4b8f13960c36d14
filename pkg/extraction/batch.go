package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/worker"
)

// BatchResult is one image's outcome on the batch stream, tagged with
// its submission index so callers can reassemble order.
type BatchResult struct {
	Index      int
	ImageHash  string
	Palette    *core.AggregatedPalette
	State      core.RequestState
	DurationMs int64
	// Err is non-nil only when the request failed outright.
	Err error
}

// ExtractBatch runs requests under a concurrency bound and streams each
// outcome as it finishes; completion order is unspecified. One failed
// image reports on its own result and never aborts the batch. A
// maxConcurrent <= 0 falls back to the configured default. The channel
// is buffered for the whole batch and closed when the run ends,
// including on context cancellation.
func (s *Service) ExtractBatch(ctx context.Context, reqs []core.ExtractionRequest, maxConcurrent int) (<-chan BatchResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("extract batch: no requests")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = s.cfg.Batch.MaxConcurrent
	}

	s.log.Info().
		Int("requests", len(reqs)).
		Int("max_concurrent", maxConcurrent).
		Msg("batch started")

	out := make(chan BatchResult, len(reqs))
	go func() {
		defer close(out)
		start := time.Now()
		failed := 0
		_, err := worker.ProcessAllWithCallback(ctx, reqs,
			func(ctx context.Context, req core.ExtractionRequest) (BatchResult, error) {
				began := time.Now()
				palette, state, err := s.ExtractSync(ctx, req)
				return BatchResult{
					ImageHash:  req.Image.Hash(),
					Palette:    palette,
					State:      state,
					DurationMs: time.Since(began).Milliseconds(),
					Err:        err,
				}, nil
			},
			func(res worker.Result[core.ExtractionRequest, BatchResult]) error {
				br := res.Output
				br.Index = res.Index
				if res.Err != nil && br.Err == nil {
					br.Err = res.Err
					br.State = core.StateFailed
				}
				if br.Err != nil {
					failed++
				}
				out <- br
				return nil
			},
			worker.Options{MaxConcurrent: maxConcurrent},
		)
		ev := s.log.Info()
		if err != nil {
			ev = s.log.Warn().AnErr("cause", err)
		}
		ev.Int("requests", len(reqs)).
			Int("failed", failed).
			Dur("elapsed", time.Since(start)).
			Msg("batch finished")
	}()
	return out, nil
}
