// Package plan defines the static plan catalog: the mapping from a plan
// tier to its monthly credit allotment ceiling.
package plan

import (
	"fmt"
	"strings"
)

// Tier identifies a subscription plan tier.
type Tier string

// Known plan tiers.
const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// ParseTier parses a tier string, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, nil
	case TierBasic:
		return TierBasic, nil
	case TierPremium:
		return TierPremium, nil
	case TierEnterprise:
		return TierEnterprise, nil
	default:
		return "", fmt.Errorf("plan: unknown tier %q", s)
	}
}

// Valid reports whether the tier is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium, TierEnterprise:
		return true
	default:
		return false
	}
}

// Catalog maps plan tiers to credit ceilings. It is an immutable
// configuration value, not a runtime entity.
type Catalog struct {
	ceilings map[Tier]int64
	fallback int64
}

// Default returns the standard catalog. The allotments match the published
// pricing table; an unknown tier falls back to the free allotment.
func Default() Catalog {
	return Catalog{
		ceilings: map[Tier]int64{
			TierFree:       100,
			TierBasic:      500,
			TierPremium:    2000,
			TierEnterprise: 10000,
		},
		fallback: 100,
	}
}

// NewCatalog builds a custom catalog. Every ceiling must be positive.
// The fallback is used for tiers missing from the map.
func NewCatalog(ceilings map[Tier]int64, fallback int64) (Catalog, error) {
	if fallback <= 0 {
		return Catalog{}, fmt.Errorf("plan: fallback ceiling must be positive, got %d", fallback)
	}
	copied := make(map[Tier]int64, len(ceilings))
	for tier, ceiling := range ceilings {
		if ceiling <= 0 {
			return Catalog{}, fmt.Errorf("plan: ceiling for tier %q must be positive, got %d", tier, ceiling)
		}
		copied[tier] = ceiling
	}
	return Catalog{ceilings: copied, fallback: fallback}, nil
}

// Ceiling returns the maximum credit balance for a tier.
func (c Catalog) Ceiling(tier Tier) int64 {
	if ceiling, ok := c.ceilings[tier]; ok {
		return ceiling
	}
	return c.fallback
}

// Tiers returns the tiers the catalog defines explicitly.
func (c Catalog) Tiers() []Tier {
	tiers := make([]Tier, 0, len(c.ceilings))
	for tier := range c.ceilings {
		tiers = append(tiers, tier)
	}
	return tiers
}
