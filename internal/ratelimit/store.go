// Package ratelimit implements the fixed-window request limiter. A window is
// 60 seconds long and keyed by caller; the request that pushes the count past
// the limit is the one rejected, so the limit-th request in a window is still
// admitted. The backing store is swappable: an in-memory map for single-node
// deployments and tests, and a PostgreSQL table for multi-node deployments.
package ratelimit

import (
	"context"
	"time"
)

// Window is the fixed rate-limit window length. The counter resets at this
// interval boundary rather than sliding, so burst-at-boundary behavior is
// accepted by design.
const Window = 60 * time.Second

// Result contains the outcome of an admission check.
type Result struct {
	// Allowed indicates whether the request is within the rate limit.
	Allowed bool
	// Limit is the ceiling the check was performed against.
	Limit int
	// Remaining is the number of requests remaining in the current window,
	// floored at zero.
	Remaining int
	// ResetAt is the start of the next whole-minute boundary, reported to
	// clients in the X-RateLimit-Reset header.
	ResetAt time.Time
}

// Store abstracts the backing store for rate limiting. Admission cannot fail
// in the domain sense -- it only rejects -- but store implementations may
// return infrastructure errors (e.g. a database outage), on which the
// middleware fails open.
type Store interface {
	// Admit atomically reads-or-initializes the caller's window, expires it
	// if stale, increments the count, and compares against limit. The
	// read-modify-write is a single atomic operation per key: two concurrent
	// requests from the same caller can never both observe the same count.
	Admit(ctx context.Context, key string, limit int) (Result, error)

	// Remaining computes limit minus the current window count, floored at
	// zero, with a fresh staleness check: a caller who has not requested in
	// the new window sees the full limit even though no write has occurred.
	Remaining(ctx context.Context, key string, limit int) (int, error)
}

// nextReset returns the start of the next whole-minute boundary after now.
func nextReset(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute)
}
