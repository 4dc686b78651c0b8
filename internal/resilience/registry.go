package resilience

import (
	"sort"
	"sync"
)

// Registry maintains named circuit breakers for all upstream dependencies.
// Read-mostly after startup; Create and ResetAll are rare administrative
// operations.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker)}
}

// Create registers a breaker for config.Name, replacing any existing breaker
// with the same name.
func (r *Registry) Create(config BreakerConfig) (*CircuitBreaker, error) {
	cb, err := NewCircuitBreaker(config)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[config.Name] = cb
	return cb, nil
}

// Get returns the breaker for name, or false if none is registered.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// AnyOpen reports whether any registered breaker is currently open.
func (r *Registry) AnyOpen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cb := range r.breakers {
		if cb.State() == StateOpen {
			return true
		}
	}
	return false
}

// ListOpen returns the sorted names of all open breakers.
func (r *Registry) ListOpen() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	open := []string{}
	for name, cb := range r.breakers {
		if cb.State() == StateOpen {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

// ResetAll force-closes every breaker. Operational escape hatch.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cb := range r.breakers {
		cb.ForceClose()
	}
}

// Snapshot returns status for every registered breaker keyed by name.
func (r *Registry) Snapshot() map[string]BreakerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]BreakerStatus, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.Status()
	}
	return out
}
