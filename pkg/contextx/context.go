// Package contextx carries per-request values (identity, tenant, logger,
// request id) through the middleware chain with typed accessors.
package contextx

import (
	"context"

	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/pkg/auth"
	"github.com/hscale/adx-gateway/pkg/tenant"
)

// Key types (unexported).
type (
	identityKeyType  struct{}
	tenantKeyType    struct{}
	loggerKeyType    struct{}
	requestIDKeyType struct{}
)

var (
	identityKey  = identityKeyType{}
	tenantKey    = tenantKeyType{}
	loggerKey    = loggerKeyType{}
	requestIDKey = requestIDKeyType{}
)

// Identity helpers.
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func Identity(ctx context.Context) *auth.Identity {
	if id, ok := ctx.Value(identityKey).(*auth.Identity); ok {
		return id
	}
	return nil
}

// Tenant helpers.
func WithTenant(ctx context.Context, tc *tenant.Context) context.Context {
	return context.WithValue(ctx, tenantKey, tc)
}

func Tenant(ctx context.Context) *tenant.Context {
	if tc, ok := ctx.Value(tenantKey).(*tenant.Context); ok {
		return tc
	}
	return nil
}

// Logger helpers. Logger never returns nil: callers outside a request
// scope get the global no-op logger.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// RequestID helpers.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
