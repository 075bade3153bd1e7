package db

import (
	"context"
	"time"

	"docgen/internal/types"
)

// UsageLedgerRepo is the PostgreSQL-backed usage.Ledger: an append-only table
// of generation timestamps per caller. Monthly usage is a COUNT over the
// (caller_key, generated_at) index, so the quota check never scans the whole
// ledger.
type UsageLedgerRepo struct {
	db DBTX
}

// NewUsageLedgerRepo creates a UsageLedgerRepo backed by the given database
// connection (pool or transaction).
func NewUsageLedgerRepo(db DBTX) *UsageLedgerRepo {
	return &UsageLedgerRepo{db: db}
}

// Append implements usage.Ledger. One row is inserted per generation so the
// ledger stays an ordered sequence of timestamps, mirroring the in-memory
// backend.
func (r *UsageLedgerRepo) Append(ctx context.Context, key string, n int, at time.Time) error {
	if n <= 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO usage_ledger (caller_key, generated_at)
		 SELECT $1, $2 FROM generate_series(1, $3)`,
		key, at.UTC(), n,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record usage", err)
	}
	return nil
}

// CountSince implements usage.Ledger.
func (r *UsageLedgerRepo) CountSince(ctx context.Context, key string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM usage_ledger
		 WHERE caller_key = $1
		   AND generated_at >= $2`,
		key, since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count usage", err)
	}
	return count, nil
}
