package orchestrator

import (
	"sync"
)

// Manager holds a cached Orchestrator instance and rebuilds it on demand.
// This re-expresses spec.md §4.4's "cached singleton... invalidate_
// orchestrator_cache()" as explicit composition rather than a module-level
// mutable global, per the re-architecture hint in spec.md §9.
type Manager struct {
	mu      sync.RWMutex
	build   func() (*Orchestrator, error)
	current *Orchestrator
}

// NewManager wraps a builder function that constructs a fresh Orchestrator
// from the latest administrative settings (spec.md §6.3).
func NewManager(build func() (*Orchestrator, error)) *Manager {
	return &Manager{build: build}
}

// Get returns the cached Orchestrator, building it on first access.
func (m *Manager) Get() (*Orchestrator, error) {
	m.mu.RLock()
	if m.current != nil {
		defer m.mu.RUnlock()
		return m.current, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current, nil
	}
	o, err := m.build()
	if err != nil {
		return nil, err
	}
	m.current = o
	return o, nil
}

// Invalidate discards the cached instance so the next Get rebuilds
// providers with updated credentials/priority.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}
