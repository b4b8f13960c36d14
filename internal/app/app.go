// Package app wires configuration, providers and the extraction service
// into the runs the CLI exposes: one-shot extraction and batch extraction
// over a directory or manifest, with resumable JSONL output.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shpitdev/palettex/pkg/extraction"
	"github.com/shpitdev/palettex/pkg/extraction/config"
	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/orchestrator"
	"github.com/shpitdev/palettex/pkg/extraction/provider"
	"github.com/shpitdev/palettex/pkg/extraction/redact"
)

// NewService builds the extraction service with every activated adapter
// wrapped in request/response tracing.
func NewService(ctx context.Context, cfg config.Config, log zerolog.Logger) (*extraction.Service, error) {
	adapters, err := extraction.BuildAdapters(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	reg := provider.NewRegistry()
	for _, a := range adapters {
		if err := reg.Register(newTracedAdapter(a, log)); err != nil {
			return nil, err
		}
	}
	return extraction.NewWithRegistry(cfg, reg, log)
}

// ExtractParams configures a one-shot extraction run.
type ExtractParams struct {
	ImagePath string
	// OutputPath receives the palette JSON; empty or "-" writes stdout.
	OutputPath string
	MaxColors  int
	Strategy   string
}

// RunExtract extracts one image, streaming per-extractor progress to the
// log and writing the aggregated palette as JSON.
func RunExtract(ctx context.Context, cfg config.Config, p ExtractParams) error {
	log, err := NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	log = log.With().Str("run_id", uuid.NewString()).Logger()

	svc, err := NewService(ctx, cfg, log)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(p.ImagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	req := core.ExtractionRequest{
		Image:     core.NewImageHandle(data),
		MaxColors: p.MaxColors,
	}
	if p.Strategy != "" {
		req.Strategy = core.ParseStrategy(p.Strategy)
	}

	start := time.Now()
	log.Info().
		Str("image", p.ImagePath).
		Str("hash", req.Image.Hash()).
		Str("mode", cfg.Extract.Mode).
		Strs("providers", svc.Providers()).
		Msg("extraction started")

	events, err := svc.Extract(ctx, req)
	if err != nil {
		return err
	}

	var last orchestrator.Event
	for ev := range events {
		if ev.Kind == orchestrator.EventExtractorComplete && ev.Result != nil {
			res := ev.Result
			log.Info().
				Str("extractor", res.ProviderID).
				Bool("succeeded", res.Succeeded).
				Int("colors", len(res.Colors)).
				Int64("latency_ms", res.LatencyMs).
				Str("error_kind", string(res.ErrorKind)).
				Msg("extractor finished")
		}
		last = ev
	}
	if last.Kind != orchestrator.EventRequestComplete {
		return fmt.Errorf("extraction stream ended without a terminal event")
	}
	if last.State == core.StateFailed {
		msg := "all extractors failed"
		if last.Err != nil {
			msg = redact.Secrets(last.Err.Error())
		}
		return fmt.Errorf("extraction failed: %s", msg)
	}

	log.Info().
		Str("state", string(last.State)).
		Int("colors", len(last.Palette.Tokens)).
		Float64("confidence", last.Palette.OverallConfidence).
		Dur("duration", time.Since(start).Round(time.Millisecond)).
		Msg("extraction finished")

	if err := writePaletteJSON(p.OutputPath, last.Palette); err != nil {
		return err
	}
	reportRun(log, svc)
	return nil
}

func writePaletteJSON(path string, palette *core.AggregatedPalette) error {
	raw, err := json.MarshalIndent(palette, "", "  ")
	if err != nil {
		return fmt.Errorf("encode palette: %w", err)
	}
	raw = append(raw, '\n')
	if path == "" || path == "-" {
		_, err = os.Stdout.Write(raw)
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write palette: %w", err)
	}
	return nil
}

// BatchParams configures a batch run. InputDir and ManifestPath are
// mutually exclusive.
type BatchParams struct {
	InputDir     string
	ManifestPath string
	// OutputPath is the JSONL results file; with Resume it is also the
	// prior run to reuse.
	OutputPath string
	// SummaryPath optionally receives a CSV summary of the finished run.
	SummaryPath   string
	MaxColors     int
	Strategy      string
	MaxConcurrent int
	Resume        bool
}

// RunBatch extracts a set of images with bounded concurrency, writing one
// JSONL row per image as it completes. With Resume, rows from a prior
// output file are reused for images whose content hash already completed.
func RunBatch(ctx context.Context, cfg config.Config, p BatchParams) error {
	log, err := NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	log = log.With().Str("run_id", uuid.NewString()).Logger()
	runStart := time.Now()

	svc, err := NewService(ctx, cfg, log)
	if err != nil {
		return err
	}

	inputs, err := LoadImages(p.InputDir, p.ManifestPath)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no images to extract")
	}

	var prior []Row
	if p.Resume {
		prior, err = readRowsFile(p.OutputPath)
		if err != nil {
			return err
		}
	}
	plan := buildResumePlan(inputs, prior)
	log.Info().
		Int("images", len(inputs)).
		Int("reused", plan.cached).
		Int("pending", len(plan.pending)).
		Str("mode", cfg.Extract.Mode).
		Strs("providers", svc.Providers()).
		Msg("batch plan")

	outF, err := os.Create(p.OutputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		_ = outF.Close()
	}()
	enc := json.NewEncoder(outF)

	for _, row := range plan.rows {
		if row.State == "" {
			continue
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("write output row: %w", err)
		}
	}

	if len(plan.pending) > 0 {
		reqs := make([]core.ExtractionRequest, len(plan.pending))
		for j, idx := range plan.pending {
			req := core.ExtractionRequest{
				Image:     inputs[idx].Image,
				MaxColors: p.MaxColors,
			}
			if p.Strategy != "" {
				req.Strategy = core.ParseStrategy(p.Strategy)
			}
			reqs[j] = req
		}

		results, err := svc.ExtractBatch(ctx, reqs, p.MaxConcurrent)
		if err != nil {
			return err
		}
		finished := plan.cached
		for br := range results {
			idx := plan.pending[br.Index]
			row := rowFrom(idx, inputs[idx].Path, br)
			plan.rows[idx] = row
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("write output row: %w", err)
			}
			finished++
			log.Info().
				Str("image", row.Path).
				Str("state", row.State).
				Int64("duration_ms", row.DurationMs).
				Int("finished", finished).
				Int("total", len(inputs)).
				Msg("image finished")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if err := outF.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	if p.SummaryPath != "" {
		if err := writeSummaryCSV(p.SummaryPath, plan.rows); err != nil {
			return err
		}
	}

	complete, partial, failed := countStates(plan.rows)
	log.Info().
		Int("complete", complete).
		Int("partial", partial).
		Int("failed", failed).
		Int("reused", plan.cached).
		Dur("duration", time.Since(runStart).Round(time.Millisecond)).
		Msg("batch run complete")
	reportRun(log, svc)

	if failed == len(plan.rows) {
		return fmt.Errorf("every image failed; see %s", p.OutputPath)
	}
	return nil
}

// reportRun logs per-provider metrics and cache counters for a finished run.
func reportRun(log zerolog.Logger, svc *extraction.Service) {
	for _, st := range svc.ProviderMetrics() {
		log.Info().
			Str("provider", st.Provider).
			Int64("success", st.Success).
			Int64("failure", st.Failure).
			Float64("success_rate", st.SuccessRate).
			Int64("p50_ms", st.P50Ms).
			Int64("p95_ms", st.P95Ms).
			Str("cost", st.CumulativeCost.String()).
			Msg("provider metrics")
	}
	stats := svc.CacheStats()
	log.Info().
		Int64("hits", stats.Hits).
		Int64("misses", stats.Misses).
		Int64("evictions", stats.Evictions).
		Int("entries", stats.Entries).
		Msg("cache stats")
}
