package allocation

import "context"

// =============================================================================
// PRISON CONFIGURATION - Per-prison, per-policy settings
// =============================================================================

// PrisonConfig holds the per-prison settings for one policy. Read-only input
// to both the Recommender and the Manager.
type PrisonConfig struct {
	PrisonCode PrisonCode
	Policy     PolicyCode

	// Enabled gates the whole engine for this prison and policy.
	Enabled bool

	// Capacity is the default per-staff capacity where no staff-level
	// override exists.
	Capacity int

	// AllowAutoAllocation gates the Recommender for this prison.
	AllowAutoAllocation bool

	// SessionFrequencyDays is how often a session with each assigned person
	// is expected to be recorded.
	SessionFrequencyDays int
}

// PrisonConfigStore is the persistence boundary for prison configuration.
// FindByCode returns (nil, nil) when no explicit row exists; the policy's
// defaults apply in that case.
type PrisonConfigStore interface {
	FindByCode(ctx context.Context, prison PrisonCode, policy PolicyCode) (*PrisonConfig, error)
	SavePrisonConfig(ctx context.Context, cfg PrisonConfig) error
}

// PrisonConfigFor resolves the effective configuration for a prison under the
// actor's policy, falling back to policy defaults when no row exists.
func PrisonConfigFor(ctx context.Context, store PrisonConfigStore, actor ActorContext, prison PrisonCode) (PrisonConfig, error) {
	cfg, err := store.FindByCode(ctx, prison, actor.Policy.Code())
	if err != nil {
		return PrisonConfig{}, err
	}
	if cfg == nil {
		return actor.Policy.DefaultPrisonConfig(prison), nil
	}
	return *cfg, nil
}
