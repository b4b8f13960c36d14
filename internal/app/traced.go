package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/redact"
)

// tracedAdapter wraps a provider adapter with debug request/response logs.
// The router already records metrics; this layer exists for humans reading
// a run at debug level.
type tracedAdapter struct {
	next core.Adapter
	log  zerolog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func newTracedAdapter(next core.Adapter, log zerolog.Logger) *tracedAdapter {
	return &tracedAdapter{
		next:     next,
		log:      log.With().Str("component", "provider").Str("provider", next.ID()).Logger(),
		attempts: make(map[string]int),
	}
}

func (t *tracedAdapter) ID() string { return t.next.ID() }

func (t *tracedAdapter) EstimateCost() decimal.Decimal { return t.next.EstimateCost() }

func (t *tracedAdapter) Call(ctx context.Context, image core.ImageHandle, maxColors int) (core.ExtractionResult, error) {
	attempt := t.nextAttempt(image.Hash())
	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.log.Debug().
		Str("image", image.Hash()).
		Int("attempt", attempt).
		Int("request_bytes", len(image.Bytes())).
		Int("max_colors", maxColors).
		Str("deadline_in", deadlineIn).
		Msg("provider request")

	start := time.Now()
	res, err := t.next.Call(ctx, image, maxColors)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		t.log.Debug().
			Str("image", image.Hash()).
			Int("attempt", attempt).
			Dur("duration", elapsed).
			Str("kind", string(core.KindOf(err))).
			Str("error", redact.Secrets(err.Error())).
			Msg("provider response")
		return res, err
	}
	t.log.Debug().
		Str("image", image.Hash()).
		Int("attempt", attempt).
		Dur("duration", elapsed).
		Int("colors", len(res.Colors)).
		Float64("confidence", res.OverallConfidence).
		Str("cost", res.CostEstimate.String()).
		Msg("provider response")
	return res, nil
}

func (t *tracedAdapter) nextAttempt(imageHash string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[imageHash]++
	return t.attempts[imageHash]
}
