package tenant

import (
	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
)

// Tier is a tenant's subscription tier. Tiers are ordered; a request gated
// on a tier is authorized only if the tenant's tier index is at least the
// required index.
type Tier string

const (
	TierFree         Tier = "free"
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

var tierOrder = map[Tier]int{
	TierFree:         0,
	TierBasic:        1,
	TierProfessional: 2,
	TierEnterprise:   3,
}

// AtLeast reports whether the tier meets the minimum. Unknown tiers never
// satisfy any requirement.
func (t Tier) AtLeast(min Tier) bool {
	have, ok := tierOrder[t]
	if !ok {
		return false
	}
	want, ok := tierOrder[min]
	if !ok {
		return false
	}
	return have >= want
}

// Quota is a cumulative usage ceiling for a tenant.
type Quota struct {
	Used  int64  `json:"used"`
	Limit int64  `json:"limit"`
	Unit  string `json:"unit"`
}

// Context is the cached metadata describing a tenant. It is owned by the
// Resolver and cached with a short TTL.
type Context struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Features []string         `json:"features"`
	Quotas   map[string]Quota `json:"quotas"`
	Tier     Tier             `json:"subscription_tier"`
	IsActive bool             `json:"is_active"`
}

// HasFeature reports whether the tenant has the named feature enabled.
func (c *Context) HasFeature(name string) bool {
	if c == nil {
		return false
	}
	for _, f := range c.Features {
		if f == name {
			return true
		}
	}
	return false
}

// RequireFeature is a composable check failing with TENANT_FEATURE_UNAVAILABLE.
func (c *Context) RequireFeature(name string) error {
	if !c.HasFeature(name) {
		return gwerrors.ErrFeatureUnavailable.WithDetails(map[string]interface{}{
			"feature": name,
		})
	}
	return nil
}

// RequireTier is a composable check failing with INSUFFICIENT_SUBSCRIPTION_TIER.
func (c *Context) RequireTier(min Tier) error {
	if c == nil || !c.Tier.AtLeast(min) {
		return gwerrors.ErrInsufficientTier.WithDetails(map[string]interface{}{
			"required": string(min),
		})
	}
	return nil
}
