package billing

import "docgen/internal/types"

// KeyService resolves an opaque caller key to a plan tier. It never fails:
// absent or unknown keys resolve to the free tier, and the anonymous
// sentinel is always free regardless of table contents.
type KeyService interface {
	// IsValid reports whether the key exists in the key table. Invalid keys
	// are downgraded to the anonymous identity by the API layer rather than
	// rejected.
	IsValid(key string) bool

	// ResolvePlan maps a caller key to its plan tier.
	ResolvePlan(key string) types.PlanTier
}

// staticKeyService is an in-memory key table. It is the standard
// implementation for single-node deployments and tests; a real key store
// would sit behind the same interface.
type staticKeyService struct {
	plans map[string]types.PlanTier
}

// demoKeys seeds the static key table with the well-known sample keys.
var demoKeys = map[string]types.PlanTier{
	"demo-key-123": types.PlanStarter,
	"test-key-456": types.PlanGrowth,
}

// NewStaticKeyService returns a KeyService backed by the demo key table.
func NewStaticKeyService() KeyService {
	m := make(map[string]types.PlanTier, len(demoKeys))
	for k, v := range demoKeys {
		m[k] = v
	}
	return &staticKeyService{plans: m}
}

// NewKeyServiceWithTable returns a KeyService backed by the supplied table.
// The table is copied; later mutation of the argument has no effect.
func NewKeyServiceWithTable(table map[string]types.PlanTier) KeyService {
	m := make(map[string]types.PlanTier, len(table))
	for k, v := range table {
		m[k] = v
	}
	return &staticKeyService{plans: m}
}

// IsValid implements KeyService.
func (s *staticKeyService) IsValid(key string) bool {
	_, ok := s.plans[key]
	return ok
}

// ResolvePlan maps a caller key to its plan tier. The anonymous sentinel and
// any unknown key map to the free tier.
func (s *staticKeyService) ResolvePlan(key string) types.PlanTier {
	if key == types.AnonymousCaller {
		return types.PlanFree
	}
	if tier, ok := s.plans[key]; ok {
		return tier
	}
	return types.PlanFree
}
