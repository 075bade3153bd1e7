package db

import (
	"context"
	"time"

	"docgen/internal/ratelimit"
	"docgen/internal/types"
)

// RateLimitRepo is the PostgreSQL-backed ratelimit.Store. The window
// read-modify-write is a single upsert statement, so concurrent requests from
// the same caller serialize on the row and can never both observe a stale
// count. This is the multi-node counterpart of ratelimit.MemoryStore.
type RateLimitRepo struct {
	db  DBTX
	now func() time.Time // injectable clock for tests
}

// NewRateLimitRepo creates a RateLimitRepo backed by the given database
// connection (pool or transaction).
func NewRateLimitRepo(db DBTX) *RateLimitRepo {
	return &RateLimitRepo{db: db, now: time.Now}
}

// Admit implements ratelimit.Store. The upsert initializes the window on the
// first request per caller, resets it when stale, and increments it
// otherwise, all in one atomic statement.
func (r *RateLimitRepo) Admit(ctx context.Context, key string, limit int) (ratelimit.Result, error) {
	now := r.now().UTC()
	stale := now.Add(-ratelimit.Window)

	var count int
	err := r.db.QueryRow(ctx,
		`INSERT INTO rate_windows (caller_key, window_start, count)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (caller_key) DO UPDATE SET
		     window_start = CASE WHEN rate_windows.window_start <= $3
		                         THEN $2 ELSE rate_windows.window_start END,
		     count        = CASE WHEN rate_windows.window_start <= $3
		                         THEN 1 ELSE rate_windows.count + 1 END
		 RETURNING count`,
		key, now, stale,
	).Scan(&count)
	if err != nil {
		return ratelimit.Result{}, types.NewAppError(types.ErrCodeInternalDB, "failed to admit request", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Truncate(time.Minute).Add(time.Minute),
	}, nil
}

// Remaining implements ratelimit.Store. The staleness check happens in SQL so
// a caller idle past the window boundary reads as a full allowance without a
// write.
func (r *RateLimitRepo) Remaining(ctx context.Context, key string, limit int) (int, error) {
	now := r.now().UTC()
	stale := now.Add(-ratelimit.Window)

	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(
		     (SELECT count FROM rate_windows
		      WHERE caller_key = $1 AND window_start > $2),
		     0)`,
		key, stale,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to read rate window", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Prune deletes windows that expired at least gracePeriods windows ago and
// returns the number of rows removed.
func (r *RateLimitRepo) Prune(ctx context.Context, gracePeriods int) (int, error) {
	if gracePeriods < 1 {
		gracePeriods = 1
	}
	cutoff := r.now().UTC().Add(-time.Duration(gracePeriods) * ratelimit.Window)

	tag, err := r.db.Exec(ctx,
		`DELETE FROM rate_windows WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune rate windows", err)
	}
	return int(tag.RowsAffected()), nil
}
