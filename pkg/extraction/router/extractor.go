package router

import (
	"context"
	"strings"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// ExtractorID identifies the combined routed extraction path on event
// streams when no single provider can be named up front.
const ExtractorID = "router"

// Extractor adapts a Router plus a fixed candidate set to the extractor
// contract, so routed AI extraction slots into a request next to the
// local heuristic.
type Extractor struct {
	id       string
	router   *Router
	adapters []core.Adapter
}

// NewExtractor builds a routed extractor. An empty id defaults to
// ExtractorID. Adapters keep their order for strategy tie-breaks.
func NewExtractor(id string, r *Router, adapters []core.Adapter) *Extractor {
	if strings.TrimSpace(id) == "" {
		id = ExtractorID
	}
	return &Extractor{id: id, router: r, adapters: adapters}
}

func (e *Extractor) ID() string { return e.id }

// Extract walks the fallback chain under the request's strategy.
func (e *Extractor) Extract(ctx context.Context, req core.ExtractionRequest) core.ExtractionResult {
	return e.router.Route(ctx, req, e.adapters, req.Strategy)
}
