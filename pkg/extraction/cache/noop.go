package cache

import (
	"time"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// Noop is the disabled cache: every Get misses and Puts are dropped. It
// keeps the router's code path uniform when caching is switched off.
type Noop struct{}

var _ Store = Noop{}

func (Noop) Get(string) (core.ExtractionResult, bool) { return core.ExtractionResult{}, false }

func (Noop) Put(string, core.ExtractionResult, time.Duration) {}

func (Noop) InvalidateImage(string) int { return 0 }

func (Noop) Stats() Stats { return Stats{} }
