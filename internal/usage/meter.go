// Package usage implements the monthly generation meter. Every successful
// render appends to a per-caller ledger; the quota gate counts only entries
// timestamped within the current calendar month (UTC) and admits strictly
// below the plan ceiling. The ledger backend is swappable: an in-memory map
// for single-node deployments and tests, and a PostgreSQL table for
// multi-node deployments.
package usage

import (
	"context"
	"time"

	"docgen/internal/billing"
)

// Ledger is the storage contract for generation records. Appends must be
// atomic per key with respect to concurrent requests from the same caller.
type Ledger interface {
	// Append records n generations for the caller at the given instant.
	Append(ctx context.Context, key string, n int, at time.Time) error

	// CountSince returns the number of generations recorded for the caller
	// with a timestamp at or after since.
	CountSince(ctx context.Context, key string, since time.Time) (int, error)
}

// Meter gates document generation against the caller's monthly plan quota.
type Meter struct {
	keys   billing.KeyService
	plans  billing.PlanRegistry
	ledger Ledger
	now    func() time.Time // injectable clock for tests
}

// NewMeter creates a Meter over the given key service, plan registry, and
// ledger backend.
func NewMeter(keys billing.KeyService, plans billing.PlanRegistry, ledger Ledger) *Meter {
	return &Meter{
		keys:   keys,
		plans:  plans,
		ledger: ledger,
		now:    time.Now,
	}
}

// CanGenerate reports whether the caller is strictly below their monthly
// ceiling. A caller exactly at quota is denied.
func (m *Meter) CanGenerate(ctx context.Context, key string) (bool, error) {
	used, limit, err := m.MonthlyUsage(ctx, key)
	if err != nil {
		return false, err
	}
	return used < limit, nil
}

// Record appends n generations for the caller, timestamped now. It is called
// only after a render succeeds: usage reflects successful renders, not
// admitted requests.
func (m *Meter) Record(ctx context.Context, key string, n int) error {
	return m.ledger.Append(ctx, key, n, m.now().UTC())
}

// MonthlyUsage returns the caller's generation count for the current
// calendar month alongside their plan ceiling. Only entries timestamped at
// or after the first instant of the month (UTC) are counted, so a
// generation recorded on the last day of a month never leaks into the next
// month's quota.
func (m *Meter) MonthlyUsage(ctx context.Context, key string) (used, limit int, err error) {
	limit = m.plans.GetLimits(m.keys.ResolvePlan(key)).GenerationsPerMonth

	used, err = m.ledger.CountSince(ctx, key, monthStart(m.now()))
	if err != nil {
		return 0, limit, err
	}
	return used, limit, nil
}

// monthStart returns the first instant of the current calendar month in UTC.
func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
