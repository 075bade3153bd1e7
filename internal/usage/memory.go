package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is the in-memory Ledger implementation: a per-caller ordered
// slice of generation timestamps. Entries are never pruned; unbounded growth
// is accepted for the single-node backend, where caller-key cardinality is
// assumed small.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryLedger creates an empty in-memory usage ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string][]time.Time)}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, key string, n int, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := 0; i < n; i++ {
		l.entries[key] = append(l.entries[key], at)
	}
	return nil
}

// CountSince implements Ledger.
func (l *MemoryLedger) CountSince(_ context.Context, key string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, at := range l.entries[key] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}
