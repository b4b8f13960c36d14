// Package provider holds the adapter registry and the pieces every vision
// adapter shares: the instruction prompt, payload helpers, and HTTP status
// classification.
package provider

import (
	"fmt"
	"sync"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// Registry tracks adapters in registration order. Order matters: strategy
// ties break by it, which keeps routing deterministic across runs.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]core.Adapter
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]core.Adapter)}
}

// Register adds an adapter. Registering an empty or duplicate id is an error.
func (r *Registry) Register(a core.Adapter) error {
	if a == nil || a.ID() == "" {
		return fmt.Errorf("register provider: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := a.ID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("register provider: %q already registered", id)
	}
	r.adapters[id] = a
	r.order = append(r.order, id)
	return nil
}

// Get returns the adapter registered under id.
func (r *Registry) Get(id string) (core.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the adapters in registration order.
func (r *Registry) All() []core.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// Len reports how many adapters are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
