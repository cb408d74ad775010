package databases

import (
	"context"
	"sort"
	"sync"
	"time"

	"agentengine/internal/persistence"
)

func newMemoryTraceStore() persistence.TraceStore {
	return &memTraceStore{traces: map[string]persistence.Trace{}}
}

type memTraceStore struct {
	mu     sync.RWMutex
	traces map[string]persistence.Trace
}

func (s *memTraceStore) Init(ctx context.Context) error { return nil }

func (s *memTraceStore) Create(ctx context.Context, t persistence.Trace) (persistence.Trace, error) {
	if t.Status == "" {
		t.Status = persistence.TraceStatusRunning
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[t.ID] = t
	return t, nil
}

func (s *memTraceStore) Update(ctx context.Context, t persistence.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.traces[t.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	existing.Status = t.Status
	existing.Success = t.Success
	existing.Answer = t.Answer
	existing.Error = t.Error
	existing.TotalTurns = t.TotalTurns
	existing.TotalInputTokens = t.TotalInputTokens
	existing.TotalOutputTokens = t.TotalOutputTokens
	existing.Steps = t.Steps
	existing.LLMCalls = t.LLMCalls
	existing.DurationMS = t.DurationMS
	s.traces[t.ID] = existing
	return nil
}

func (s *memTraceStore) Get(ctx context.Context, id string) (persistence.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traces[id]
	if !ok {
		return persistence.Trace{}, persistence.ErrNotFound
	}
	return t, nil
}

func (s *memTraceStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]persistence.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.Trace, 0)
	for _, t := range s.traces {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
