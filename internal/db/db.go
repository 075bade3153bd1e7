// Package db provides PostgreSQL-backed store implementations for the docgen
// service: the multi-node rate-limit window store and the usage ledger. All
// stores accept a DBTX interface that is satisfied by both *pgxpool.Pool (for
// normal queries) and pgx.Tx (for transactional execution).
//
// The in-memory implementations in internal/ratelimit and internal/usage are
// the defaults; these stores are selected when DATABASE_URL is configured.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Stores accept this so the same code works inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool opens a pgx connection pool against the given URL and verifies
// connectivity with a ping.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables used by the Postgres-backed stores if they
// do not already exist. It is idempotent and safe to run on every startup.
func EnsureSchema(ctx context.Context, db DBTX) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS rate_windows (
			caller_key   TEXT PRIMARY KEY,
			window_start TIMESTAMPTZ NOT NULL,
			count        INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS usage_ledger (
			id          BIGSERIAL PRIMARY KEY,
			caller_key  TEXT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS usage_ledger_key_time_idx
			ON usage_ledger (caller_key, generated_at);`

	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
