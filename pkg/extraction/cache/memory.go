package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// Memory is the in-process Store. Expiry is lazy: stale entries are
// dropped when read. When full, the oldest-stored entry is evicted.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	maxEntries int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type memEntry struct {
	res       core.ExtractionResult
	storedAt  time.Time
	expiresAt time.Time
}

// MemoryOptions configures a Memory store.
type MemoryOptions struct {
	// MaxEntries caps the store; 0 means DefaultMaxEntries.
	MaxEntries int
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	return &Memory{
		entries:    make(map[string]memEntry),
		maxEntries: opts.MaxEntries,
	}
}

// Get returns the cached result for key if present and fresh. Callers must
// not mutate the returned token slice.
func (m *Memory) Get(key string) (core.ExtractionResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		m.misses.Add(1)
		return core.ExtractionResult{}, false
	}
	if time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		m.misses.Add(1)
		return core.ExtractionResult{}, false
	}
	m.hits.Add(1)
	return e.res, true
}

// Put stores a successful result under key. Failed results are ignored so
// a transient provider error can never mask a later success. A ttl <= 0
// uses DefaultTTL.
func (m *Memory) Put(key string, res core.ExtractionResult, ttl time.Duration) {
	if !res.Succeeded {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	m.entries[key] = memEntry{res: res, storedAt: now, expiresAt: now.Add(ttl)}
}

func (m *Memory) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range m.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
		m.evictions.Add(1)
	}
}

// InvalidateImage removes every entry whose key starts with imageHash.
func (m *Memory) InvalidateImage(imageHash string) int {
	if imageHash == "" {
		return 0
	}
	prefix := imageHash + "|"
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Stats reports counters and the current entry count.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	entries := len(m.entries)
	m.mu.Unlock()
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Entries:   entries,
	}
}
