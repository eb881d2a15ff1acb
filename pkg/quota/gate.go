// Package quota enforces tenant-level consumption ceilings. Unlike rate
// limiting (request frequency), a quota tracks cumulative business-unit
// consumption: seats, storage, monthly calls. The gate performs a
// reservation check; the authoritative debit lives in the downstream
// service that owns the quota ledger and is committed only after the
// operation succeeds, so failed operations are never charged.
package quota

import (
	"context"

	"go.uber.org/zap"

	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
	"github.com/hscale/adx-gateway/pkg/tenant"
)

// Committer records a successful chargeable operation against the
// authoritative quota ledger downstream.
type Committer interface {
	CommitUsage(ctx context.Context, tenantID, quotaType string, amount int64) error
}

// Invalidator evicts a tenant's cached context so the next resolution sees
// the post-commit quota counters.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// Gate checks requested operations against a tenant's quota counters.
type Gate struct {
	committer   Committer
	invalidator Invalidator
	log         *zap.Logger
}

// NewGate creates a quota gate. committer and invalidator may be nil when
// the gateway only checks (e.g. in tests); Commit then returns nil.
func NewGate(committer Committer, invalidator Invalidator, log *zap.Logger) *Gate {
	return &Gate{
		committer:   committer,
		invalidator: invalidator,
		log:         log.With(zap.String("module", "quota")),
	}
}

// Check admits the operation iff used + amount <= limit for the quota type.
// Quota types absent from the tenant's quota map are unmetered and always
// allowed. Check never mutates counters: `used` moves only when the
// downstream ledger commits.
func (g *Gate) Check(tctx *tenant.Context, quotaType string, amount int64) error {
	if amount < 0 {
		return gwerrors.New(gwerrors.CodeInvalidInput, "quota amount must not be negative")
	}
	if tctx == nil {
		return gwerrors.ErrTenantNotFound
	}

	q, metered := tctx.Quotas[quotaType]
	if !metered {
		return nil
	}

	if q.Used+amount > q.Limit {
		return gwerrors.ErrTenantQuotaExceeded.WithDetails(map[string]interface{}{
			"quota":     quotaType,
			"unit":      q.Unit,
			"limit":     q.Limit,
			"current":   q.Used,
			"requested": amount,
		})
	}
	return nil
}

// Commit records the consumption downstream after the operation succeeded,
// then evicts the cached tenant context so subsequent checks see the new
// counters. The check/commit pair is deliberately not atomic; brief
// overshoot under concurrent admission is an accepted trade-off.
func (g *Gate) Commit(ctx context.Context, tenantID, quotaType string, amount int64) error {
	if g.committer == nil {
		return nil
	}
	if err := g.committer.CommitUsage(ctx, tenantID, quotaType, amount); err != nil {
		g.log.Error("quota commit failed",
			zap.String("tenant_id", tenantID),
			zap.String("quota", quotaType),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return gwerrors.Wrap(err, gwerrors.CodeUpstreamUnavailable, "quota commit failed")
	}
	if g.invalidator != nil {
		if err := g.invalidator.Invalidate(ctx, tenantID); err != nil {
			g.log.Warn("tenant cache invalidation after commit failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	return nil
}
