// Package billing provides plan management for the docgen service: the
// static registry of plan limits and the resolution of opaque API keys to
// plan tiers.
package billing

import "docgen/internal/types"

// PlanRegistry defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type PlanRegistry interface {
	// GetLimits returns the resource limits for the given plan tier.
	// For unknown tiers, returns the most restrictive (Free) limits
	// to fail safely.
	GetLimits(tier types.PlanTier) types.PlanLimits
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory map.
// It implements PlanRegistry and is the standard implementation for production use.
type staticPlanRegistry struct {
	limits map[types.PlanTier]types.PlanLimits
}

// planDefaults defines the hardcoded plan limits.
//
//	| Plan    | Requests/Minute | Generations/Month |
//	|---------|-----------------|-------------------|
//	| Free    | 10              | 100               |
//	| Starter | 60              | 1,000             |
//	| Growth  | 300             | 10,000            |
//	| Scale   | 600             | 50,000            |
var planDefaults = map[types.PlanTier]types.PlanLimits{
	types.PlanFree: {
		RequestsPerMinute:   10,
		GenerationsPerMonth: 100,
	},
	types.PlanStarter: {
		RequestsPerMinute:   60,
		GenerationsPerMonth: 1000,
	},
	types.PlanGrowth: {
		RequestsPerMinute:   300,
		GenerationsPerMonth: 10000,
	},
	types.PlanScale: {
		RequestsPerMinute:   600,
		GenerationsPerMonth: 50000,
	},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = planDefaults[types.PlanFree]

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// limits. This is the standard production implementation; no database or
// external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]types.PlanLimits, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{limits: m}
}

// GetLimits returns the resource limits for the given plan tier.
// If the tier is unknown, it returns the Free tier limits as a safe default.
func (r *staticPlanRegistry) GetLimits(tier types.PlanTier) types.PlanLimits {
	if limits, ok := r.limits[tier]; ok {
		return limits
	}
	return freeLimits
}
