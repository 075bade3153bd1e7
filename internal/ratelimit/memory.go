package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window is the per-caller mutable state. count reflects requests since
// start; once now-start >= Window the record is reset rather than
// accumulating.
type window struct {
	start time.Time
	count int
}

// MemoryStore is the in-memory Store implementation. One entry is created on
// the first request per caller; entries whose window has long expired are
// removed by Prune to bound memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time // injectable clock for tests
}

// NewMemoryStore creates an empty in-memory rate-limit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Admit implements Store. The whole read-modify-write happens under one lock,
// so concurrent requests from the same caller serialize and exactly one of
// them takes the last slot.
func (m *MemoryStore) Admit(_ context.Context, key string, limit int) (Result, error) {
	now := m.now().UTC()

	m.mu.Lock()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= Window {
		w = &window{start: now, count: 1}
		m.windows[key] = w
	} else {
		w.count++
	}
	count := w.count
	m.mu.Unlock()

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   nextReset(now),
	}, nil
}

// Remaining implements Store. It performs a fresh staleness check without
// writing: a stale window reads as a full allowance.
func (m *MemoryStore) Remaining(_ context.Context, key string, limit int) (int, error) {
	now := m.now().UTC()

	m.mu.Lock()
	w, ok := m.windows[key]
	var count int
	if ok && now.Sub(w.start) < Window {
		count = w.count
	}
	m.mu.Unlock()

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Prune removes windows that expired at least gracePeriods windows ago and
// returns the number of entries removed. Callers run this periodically (see
// cmd/api) to keep the map bounded by active-caller cardinality.
func (m *MemoryStore) Prune(gracePeriods int) int {
	if gracePeriods < 1 {
		gracePeriods = 1
	}
	cutoff := m.now().UTC().Add(-time.Duration(gracePeriods) * Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		if w.start.Before(cutoff) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}
