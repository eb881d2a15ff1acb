// Package tenant resolves and caches per-tenant context: features, quotas,
// and subscription tier. Resolution always fails closed: a caller may never
// read another tenant's context, and an inactive tenant rejects every
// request regardless of cache freshness.
package tenant

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hscale/adx-gateway/pkg/auth"
	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
	"github.com/hscale/adx-gateway/pkg/redis"
)

// Service fetches authoritative tenant metadata from the upstream tenant
// service on cache miss.
type Service interface {
	FetchTenant(ctx context.Context, id string) (*Context, error)
}

// Resolver resolves tenant ids from requests and caches tenant contexts.
type Resolver struct {
	store    redis.Store
	upstream Service
	keys     *redis.KeyBuilder
	breaker  *gobreaker.CircuitBreaker
	group    singleflight.Group
	ttl      time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewResolver creates a Resolver caching contexts for ttl. Upstream fetches
// are bounded by a timeout, deduplicated across concurrent misses, and
// guarded by a circuit breaker so a dead tenant service sheds load fast.
func NewResolver(store redis.Store, upstream Service, ttl time.Duration, log *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = redis.TTLTenantContext
	}
	return &Resolver{
		store:    store,
		upstream: upstream,
		keys:     redis.NewKeyBuilder(redis.NamespaceCache, redis.ContextTenant),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "tenant-upstream",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		ttl:     ttl,
		timeout: 5 * time.Second,
		log:     log.With(zap.String("module", "tenant")),
	}
}

// ExtractTenantID extracts the requested tenant id with a fixed priority
// order: explicit header, path parameter, query parameter, the identity's
// own tenant claim, then subdomain. First non-empty wins.
func ExtractTenantID(r *http.Request, identity *auth.Identity) string {
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return id
	}
	if id := pathTenantID(r.URL.Path); id != "" {
		return id
	}
	if id := r.URL.Query().Get("tenant_id"); id != "" {
		return id
	}
	if identity != nil && identity.TenantID != "" {
		return identity.TenantID
	}
	return subdomain(r.Host)
}

// pathTenantID pulls the id out of /api/tenants/{id}/... style paths.
func pathTenantID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "tenants" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func subdomain(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	parts := strings.Split(host, ".")
	if len(parts) < 3 || parts[0] == "www" {
		return ""
	}
	return parts[0]
}

// Resolve validates the caller's membership in the requested tenant and
// returns its context, from cache when fresh.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity, requested string) (*Context, error) {
	if requested == "" {
		return nil, gwerrors.ErrMissingTenantID
	}
	if identity == nil || identity.TenantID != requested {
		return nil, gwerrors.ErrTenantAccessDenied
	}

	tctx, err := r.lookup(ctx, requested)
	if err != nil {
		return nil, err
	}
	if !tctx.IsActive {
		return nil, gwerrors.ErrTenantInactive
	}
	return tctx, nil
}

func (r *Resolver) lookup(ctx context.Context, id string) (*Context, error) {
	key := r.keys.Build("context", id)

	var cached Context
	found, err := r.store.GetJSON(ctx, key, &cached)
	if err != nil {
		// A broken cache is not a broken tenant: fall through to the
		// upstream fetch.
		r.log.Warn("tenant cache read failed", zap.String("tenant_id", id), zap.Error(err))
	}
	if found {
		return &cached, nil
	}

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		return r.fetch(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}

// fetch retrieves the context upstream and populates the cache. Timeouts
// and open-breaker states fail closed as TENANT_NOT_FOUND class errors.
func (r *Resolver) fetch(ctx context.Context, id string) (*Context, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	v, err := r.breaker.Execute(func() (interface{}, error) {
		return r.upstream.FetchTenant(fetchCtx, id)
	})
	if err != nil {
		var gwerr *gwerrors.Error
		if errors.As(err, &gwerr) {
			return nil, err
		}
		r.log.Warn("tenant fetch failed", zap.String("tenant_id", id), zap.Error(err))
		return nil, gwerrors.Wrap(err, gwerrors.CodeTenantNotFound, "tenant fetch failed")
	}

	tctx := v.(*Context)
	if err := r.store.SetJSON(ctx, r.keys.Build("context", id), tctx, r.ttl); err != nil {
		r.log.Warn("tenant cache write failed", zap.String("tenant_id", id), zap.Error(err))
	}
	return tctx, nil
}

// Invalidate evicts a tenant's cached context. Called on tenant-mutation
// events pushed from upstream services.
func (r *Resolver) Invalidate(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.keys.Build("context", id))
}
