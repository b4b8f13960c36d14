// Package extraction assembles the palette extraction pipeline: provider
// adapters behind a strategy-ordered fallback router with caching and
// metrics, the local heuristic extractor, the per-request orchestrator,
// and bounded-concurrency batch execution. Library consumers import this
// package; the pieces underneath stay importable on their own.
package extraction

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shpitdev/palettex/pkg/extraction/aggregate"
	"github.com/shpitdev/palettex/pkg/extraction/cache"
	"github.com/shpitdev/palettex/pkg/extraction/config"
	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/heuristic"
	"github.com/shpitdev/palettex/pkg/extraction/metrics"
	"github.com/shpitdev/palettex/pkg/extraction/orchestrator"
	"github.com/shpitdev/palettex/pkg/extraction/provider"
	"github.com/shpitdev/palettex/pkg/extraction/provider/anthropic"
	"github.com/shpitdev/palettex/pkg/extraction/provider/gemini"
	"github.com/shpitdev/palettex/pkg/extraction/provider/httpvision"
	"github.com/shpitdev/palettex/pkg/extraction/provider/openai"
	"github.com/shpitdev/palettex/pkg/extraction/router"
)

// Service is the assembled pipeline. Build one per process; every method
// is safe for concurrent use.
type Service struct {
	cfg      config.Config
	log      zerolog.Logger
	registry *provider.Registry
	store    cache.Store
	metrics  *metrics.Registry
	router   *router.Router
	local    core.Extractor
	orch     *orchestrator.Orchestrator
}

// New builds a Service from configuration, activating every provider
// whose credentials are present or which is explicitly enabled.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Service, error) {
	cfg = cfg.WithDefaults()
	adapters, err := BuildAdapters(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	reg := provider.NewRegistry()
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return NewWithRegistry(cfg, reg, log)
}

// NewWithRegistry builds a Service over an already-populated adapter
// registry. Callers use it to install custom or decorated adapters. An
// empty (or nil) registry is fine: the local heuristic then carries
// every request alone.
func NewWithRegistry(cfg config.Config, reg *provider.Registry, log zerolog.Logger) (*Service, error) {
	cfg = cfg.WithDefaults()
	if reg == nil {
		reg = provider.NewRegistry()
	}

	var store cache.Store = cache.NewMemory(cache.MemoryOptions{MaxEntries: cfg.Cache.MaxEntries})
	if !cfg.Cache.IsEnabled() {
		store = cache.Noop{}
	}
	met := metrics.NewRegistry()

	rt := router.New(store, met, router.Options{
		MaxAttempts:       cfg.Router.MaxAttempts,
		RequestTimeout:    cfg.Router.RequestTimeout(),
		RateLimitRPS:      cfg.Router.RateLimitRPS,
		BackoffInitial:    cfg.Router.BackoffInitial(),
		BackoffMax:        cfg.Router.BackoffMax(),
		BackoffJitterFrac: cfg.Router.BackoffJitterFrac,
		CacheTTL:          cfg.Cache.TTL(),
	}, log)

	orch := orchestrator.New(orchestrator.Options{
		Deadline: cfg.Extract.Deadline(),
		Aggregate: aggregate.Options{
			Threshold:     cfg.Aggregate.DedupThreshold,
			DominantCount: cfg.Aggregate.DominantCount,
		},
	}, log)

	return &Service{
		cfg:      cfg,
		log:      log.With().Str("component", "service").Logger(),
		registry: reg,
		store:    store,
		metrics:  met,
		router:   rt,
		local:    heuristic.New(heuristic.Options{}),
		orch:     orch,
	}, nil
}

// BuildAdapters constructs one adapter per activated provider, in a fixed
// order: gemini, openai, anthropic, then the HTTP vision endpoint.
// Credentials come from the environment via config.LoadKeys. A provider
// explicitly enabled without its key is a configuration error; in auto
// mode a missing key just skips the provider.
func BuildAdapters(ctx context.Context, cfg config.Config, log zerolog.Logger) ([]core.Adapter, error) {
	keys, err := config.LoadKeys()
	if err != nil {
		return nil, err
	}

	var out []core.Adapter
	p := cfg.Providers

	if p.Gemini.Activated(keys.Gemini != "") {
		if keys.Gemini == "" {
			return nil, fmt.Errorf("provider gemini is enabled but %s is not set", config.EnvGeminiKey)
		}
		a, err := gemini.New(ctx, gemini.Config{
			APIKey:  keys.Gemini,
			Model:   p.Gemini.Model,
			BaseURL: p.Gemini.BaseURL,
		}, log)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if p.OpenAI.Activated(keys.OpenAI != "") {
		if keys.OpenAI == "" {
			return nil, fmt.Errorf("provider openai is enabled but %s is not set", config.EnvOpenAIKey)
		}
		a, err := openai.New(openai.Config{
			APIKey:  keys.OpenAI,
			Model:   p.OpenAI.Model,
			BaseURL: p.OpenAI.BaseURL,
		}, log)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if p.Anthropic.Activated(keys.Anthropic != "") {
		if keys.Anthropic == "" {
			return nil, fmt.Errorf("provider anthropic is enabled but %s is not set", config.EnvAnthropicKey)
		}
		a, err := anthropic.New(anthropic.Config{
			APIKey:  keys.Anthropic,
			Model:   p.Anthropic.Model,
			BaseURL: p.Anthropic.BaseURL,
		}, log)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if p.HTTPVision.Activated() {
		a, err := httpvision.New(httpvision.Config{
			ID:      p.HTTPVision.ID,
			BaseURL: p.HTTPVision.BaseURL,
			Token:   keys.VisionToken,
			CAPath:  p.HTTPVision.CAPath,
			Timeout: p.HTTPVision.Timeout(),
		}, log)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	return out, nil
}

// Extract runs one request and returns its event stream: one
// extractor_complete event per extractor in completion order, then
// exactly one terminal event carrying the aggregated palette. The
// channel is buffered for the whole run and always closed.
func (s *Service) Extract(ctx context.Context, req core.ExtractionRequest) (<-chan orchestrator.Event, error) {
	return s.orch.Run(ctx, s.normalize(req), s.extractors())
}

// ExtractSync drains the stream and returns just the terminal outcome.
func (s *Service) ExtractSync(ctx context.Context, req core.ExtractionRequest) (*core.AggregatedPalette, core.RequestState, error) {
	events, err := s.Extract(ctx, req)
	if err != nil {
		return nil, "", err
	}
	var last orchestrator.Event
	for ev := range events {
		last = ev
	}
	if last.Kind != orchestrator.EventRequestComplete {
		return nil, core.StateFailed, fmt.Errorf("extraction stream ended without a terminal event")
	}
	return last.Palette, last.State, last.Err
}

// InvalidateCache drops every cached result for one image hash, across
// all palette sizes and providers, returning the count removed.
func (s *Service) InvalidateCache(imageHash string) int {
	return s.store.InvalidateImage(imageHash)
}

// ProviderMetrics snapshots success/failure counts, latency percentiles
// and cumulative cost for every provider seen so far.
func (s *Service) ProviderMetrics() []metrics.Stats {
	return s.metrics.All()
}

// CacheStats reports response cache effectiveness.
func (s *Service) CacheStats() cache.Stats {
	return s.store.Stats()
}

// Providers lists the active adapter ids in registration order.
func (s *Service) Providers() []string {
	return s.registry.IDs()
}

// normalize applies configured request defaults before orchestration.
func (s *Service) normalize(req core.ExtractionRequest) core.ExtractionRequest {
	if req.MaxColors <= 0 {
		req.MaxColors = s.cfg.Extract.MaxColors
	}
	if req.Strategy == "" {
		req.Strategy = core.ParseStrategy(s.cfg.Router.Strategy)
	}
	return req.Normalized()
}

// extractors assembles the per-request extractor set: the cached local
// heuristic always runs; routed AI extraction joins it per the configured
// mode when any provider is active.
func (s *Service) extractors() []core.Extractor {
	exts := []core.Extractor{s.withCache(s.local)}
	adapters := s.registry.All()
	if len(adapters) == 0 {
		return exts
	}
	switch s.cfg.Extract.Mode {
	case config.ModeFanout:
		for _, a := range adapters {
			exts = append(exts, router.NewExtractor(a.ID(), s.router, []core.Adapter{a}))
		}
	default:
		exts = append(exts, router.NewExtractor(router.ExtractorID, s.router, adapters))
	}
	return exts
}
