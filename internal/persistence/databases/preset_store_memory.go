package databases

import (
	"context"
	"sync"

	"agentengine/internal/persistence"
)

// NewMemoryPresetStore returns an in-process PresetStore for local
// development and testing, seeded empty; presets are added via Put.
func NewMemoryPresetStore() *MemoryPresetStore {
	return &MemoryPresetStore{presets: make(map[string]persistence.AgentPreset)}
}

// MemoryPresetStore is the in-memory PresetStore implementation, exported so
// callers without a Postgres DSN can still seed a preset for local use.
type MemoryPresetStore struct {
	mu      sync.RWMutex
	presets map[string]persistence.AgentPreset
}

func (s *MemoryPresetStore) Init(context.Context) error { return nil }

func (s *MemoryPresetStore) Get(_ context.Context, id string) (persistence.AgentPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[id]
	if !ok {
		return persistence.AgentPreset{}, persistence.ErrNotFound
	}
	return p, nil
}

// Put registers or replaces a preset. Exposed for local/dev wiring where no
// Postgres-backed admin surface exists to author presets.
func (s *MemoryPresetStore) Put(p persistence.AgentPreset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[p.ID] = p
}
