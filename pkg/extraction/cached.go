package extraction

import (
	"context"
	"time"

	"github.com/shpitdev/palettex/pkg/extraction/cache"
	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// cachedExtractor serves repeat extractions of unchanged images from the
// shared response store. The router already caches per provider; this
// decorator gives non-routed extractors, i.e. the local heuristic, the
// same behavior under their own id.
type cachedExtractor struct {
	next  core.Extractor
	store cache.Store
	ttl   time.Duration
}

func (s *Service) withCache(next core.Extractor) core.Extractor {
	return &cachedExtractor{next: next, store: s.store, ttl: s.cfg.Cache.TTL()}
}

func (c *cachedExtractor) ID() string { return c.next.ID() }

func (c *cachedExtractor) Extract(ctx context.Context, req core.ExtractionRequest) core.ExtractionResult {
	key := cache.Key(req.Image.Hash(), req.MaxColors, c.next.ID())
	if res, ok := c.store.Get(key); ok {
		return res
	}
	res := c.next.Extract(ctx, req)
	if res.Succeeded {
		c.store.Put(key, res, c.ttl)
	}
	return res
}
