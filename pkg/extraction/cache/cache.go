// Package cache holds successful extraction results keyed by image content
// hash, palette size and provider id, so repeat requests against unchanged
// images skip the network entirely.
package cache

import (
	"fmt"
	"time"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// DefaultTTL is how long cached results stay fresh.
const DefaultTTL = 24 * time.Hour

// DefaultMaxEntries bounds the in-memory store.
const DefaultMaxEntries = 4096

// Key builds the cache key for one (image, parameters, provider) triple.
// The image hash leads so InvalidateImage can match by prefix.
func Key(imageHash string, maxColors int, providerID string) string {
	return fmt.Sprintf("%s|mc=%d|%s", imageHash, maxColors, providerID)
}

// Store is the seam the router reads and writes through. Implementations
// must be safe for concurrent use; racing Puts of one key resolve
// last-writer-wins. Only successful results are ever stored.
type Store interface {
	Get(key string) (core.ExtractionResult, bool)
	Put(key string, res core.ExtractionResult, ttl time.Duration)
	// InvalidateImage drops every entry for one image hash across all
	// parameter and provider combinations, returning the count removed.
	InvalidateImage(imageHash string) int
	Stats() Stats
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}
