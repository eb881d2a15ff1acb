package tenant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hscale/adx-gateway/pkg/auth"
	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
	"github.com/hscale/adx-gateway/pkg/redis"
)

type fakeService struct {
	calls   atomic.Int64
	tenants map[string]*Context
	err     error
}

func (f *fakeService) FetchTenant(_ context.Context, id string) (*Context, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	tctx, ok := f.tenants[id]
	if !ok {
		return nil, gwerrors.ErrTenantNotFound
	}
	return tctx, nil
}

func activeTenant(id string) *Context {
	return &Context{
		ID:       id,
		Name:     "Acme",
		Features: []string{"workflows", "file_storage"},
		Quotas:   map[string]Quota{"seats": {Used: 5, Limit: 10, Unit: "seats"}},
		Tier:     TierProfessional,
		IsActive: true,
	}
}

func identityFor(tenantID string) *auth.Identity {
	return &auth.Identity{Subject: "user-1", TenantID: tenantID, SessionID: "s1"}
}

func TestExtractTenantIDPriority(t *testing.T) {
	identity := identityFor("claim-tenant")

	tests := []struct {
		name   string
		build  func() *http.Request
		expect string
	}{
		{
			name: "header wins over everything",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/tenants/path-tenant/files?tenant_id=query-tenant", nil)
				r.Header.Set("X-Tenant-ID", "header-tenant")
				return r
			},
			expect: "header-tenant",
		},
		{
			name: "path beats query",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/tenants/path-tenant/files?tenant_id=query-tenant", nil)
			},
			expect: "path-tenant",
		},
		{
			name: "query beats claim",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/files?tenant_id=query-tenant", nil)
			},
			expect: "query-tenant",
		},
		{
			name: "claim beats subdomain",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/files", nil)
				r.Host = "sub-tenant.example.com"
				return r
			},
			expect: "claim-tenant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ExtractTenantID(tt.build(), identity))
		})
	}
}

func TestExtractTenantIDSubdomain(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	r.Host = "acme.app.example.com:8080"
	assert.Equal(t, "acme", ExtractTenantID(r, &auth.Identity{}))

	r.Host = "example.com"
	assert.Equal(t, "", ExtractTenantID(r, &auth.Identity{}))

	r.Host = "www.example.com"
	assert.Equal(t, "", ExtractTenantID(r, &auth.Identity{}))
}

func TestResolveTenantIsolation(t *testing.T) {
	svc := &fakeService{tenants: map[string]*Context{"t1": activeTenant("t1"), "t2": activeTenant("t2")}}
	r := NewResolver(redis.NewMemStore(), svc, time.Minute, zaptest.NewLogger(t))

	// A caller may never read another tenant's context, whatever it claims
	// in the header.
	_, err := r.Resolve(context.Background(), identityFor("t1"), "t2")
	assert.True(t, errors.Is(err, gwerrors.ErrTenantAccessDenied))
	assert.Equal(t, int64(0), svc.calls.Load())

	_, err = r.Resolve(context.Background(), nil, "t2")
	assert.True(t, errors.Is(err, gwerrors.ErrTenantAccessDenied))

	_, err = r.Resolve(context.Background(), identityFor("t1"), "")
	assert.True(t, errors.Is(err, gwerrors.ErrMissingTenantID))
}

func TestResolveCachesContext(t *testing.T) {
	svc := &fakeService{tenants: map[string]*Context{"t1": activeTenant("t1")}}
	r := NewResolver(redis.NewMemStore(), svc, time.Minute, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		tctx, err := r.Resolve(context.Background(), identityFor("t1"), "t1")
		require.NoError(t, err)
		assert.Equal(t, "t1", tctx.ID)
	}
	assert.Equal(t, int64(1), svc.calls.Load())
}

func TestResolveInvalidateForcesRefetch(t *testing.T) {
	svc := &fakeService{tenants: map[string]*Context{"t1": activeTenant("t1")}}
	r := NewResolver(redis.NewMemStore(), svc, time.Minute, zaptest.NewLogger(t))

	_, err := r.Resolve(context.Background(), identityFor("t1"), "t1")
	require.NoError(t, err)
	require.NoError(t, r.Invalidate(context.Background(), "t1"))

	_, err = r.Resolve(context.Background(), identityFor("t1"), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), svc.calls.Load())
}

func TestResolveInactiveTenantFailsClosed(t *testing.T) {
	inactive := activeTenant("t1")
	inactive.IsActive = false
	svc := &fakeService{tenants: map[string]*Context{"t1": inactive}}
	r := NewResolver(redis.NewMemStore(), svc, time.Minute, zaptest.NewLogger(t))

	_, err := r.Resolve(context.Background(), identityFor("t1"), "t1")
	assert.True(t, errors.Is(err, gwerrors.ErrTenantInactive))
}

func TestResolveUpstreamFailureFailsClosed(t *testing.T) {
	svc := &fakeService{err: errors.New("dial tcp: i/o timeout")}
	r := NewResolver(redis.NewMemStore(), svc, time.Minute, zaptest.NewLogger(t))

	_, err := r.Resolve(context.Background(), identityFor("t1"), "t1")
	assert.Equal(t, gwerrors.CodeTenantNotFound, gwerrors.CodeOf(err))
}

func TestResolveUnknownTenant(t *testing.T) {
	svc := &fakeService{tenants: map[string]*Context{}}
	r := NewResolver(redis.NewMemStore(), svc, time.Minute, zaptest.NewLogger(t))

	_, err := r.Resolve(context.Background(), identityFor("ghost"), "ghost")
	assert.True(t, errors.Is(err, gwerrors.ErrTenantNotFound))
}

func TestTierOrdering(t *testing.T) {
	assert.True(t, TierEnterprise.AtLeast(TierFree))
	assert.True(t, TierProfessional.AtLeast(TierProfessional))
	assert.False(t, TierBasic.AtLeast(TierProfessional))
	assert.False(t, Tier("trial").AtLeast(TierFree))
}

func TestRequireFeatureAndTier(t *testing.T) {
	tctx := activeTenant("t1")

	assert.NoError(t, tctx.RequireFeature("workflows"))
	err := tctx.RequireFeature("sso")
	assert.True(t, errors.Is(err, gwerrors.ErrFeatureUnavailable))
	assert.Equal(t, "sso", gwerrors.DetailsOf(err)["feature"])

	assert.NoError(t, tctx.RequireTier(TierBasic))
	err = tctx.RequireTier(TierEnterprise)
	assert.True(t, errors.Is(err, gwerrors.ErrInsufficientTier))
}
