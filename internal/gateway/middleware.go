package gateway

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/pkg/auth"
	"github.com/hscale/adx-gateway/pkg/contextx"
	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
	"github.com/hscale/adx-gateway/pkg/metrics"
	"github.com/hscale/adx-gateway/pkg/quota"
	"github.com/hscale/adx-gateway/pkg/ratelimit"
	"github.com/hscale/adx-gateway/pkg/tenant"
)

// Middleware wraps a handler. Chain applies middlewares outermost-first.
type Middleware func(http.Handler) http.Handler

func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestID assigns each request an id, honoring one supplied by an edge
// proxy upstream of us.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(contextx.WithRequestID(r.Context(), id)))
		})
	}
}

// Logging attaches a request-scoped logger and records the access log and
// request metrics labeled by route class.
func Logging(log *zap.Logger, routeClass string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With(
				zap.String("request_id", contextx.RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route_class", routeClass),
			)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(contextx.WithLogger(r.Context(), reqLog)))

			elapsed := time.Since(start)
			metrics.RequestsTotal.WithLabelValues(routeClass, strconv.Itoa(rec.status)).Inc()
			metrics.RequestDuration.WithLabelValues(routeClass).Observe(elapsed.Seconds())
			reqLog.Info("request completed",
				zap.Int("status", rec.status),
				zap.Duration("elapsed", elapsed),
			)
		})
	}
}

// Authenticate validates the bearer credential and stores the identity in
// the request context. Requests without a valid credential never reach
// the next handler.
func Authenticate(validator *auth.Validator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := contextx.Logger(r.Context())
			token := auth.ExtractBearer(r.Header.Get("Authorization"))
			identity, err := validator.Validate(r.Context(), token)
			if err != nil {
				log.Warn("authentication rejected", zap.String("code", string(gwerrors.CodeOf(err))))
				writeError(w, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextx.WithIdentity(r.Context(), identity)))
		})
	}
}

// ResolveTenant resolves and authorizes the request's tenant, stores the
// tenant context, and stamps the tenant response headers.
func ResolveTenant(resolver *tenant.Resolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := contextx.Logger(r.Context())
			identity := contextx.Identity(r.Context())

			requested := tenant.ExtractTenantID(r, identity)
			tctx, err := resolver.Resolve(r.Context(), identity, requested)
			if err != nil {
				log.Warn("tenant resolution rejected",
					zap.String("tenant_id", requested),
					zap.String("code", string(gwerrors.CodeOf(err))))
				writeError(w, log, err)
				return
			}

			writeTenantHeaders(w, tctx)
			next.ServeHTTP(w, r.WithContext(contextx.WithTenant(r.Context(), tctx)))
		})
	}
}

// RateLimit admits or rejects by the route class's limiter. Limit headers
// are written on every response, allowed or not.
func RateLimit(routeClass string, preset ratelimit.Preset, limiter ratelimit.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := contextx.Logger(r.Context())

			decision, err := limiter.Allow(r.Context(), limitKey(r, preset.KeyStrategy))
			if err != nil {
				// Fail closed: an undecidable limit is a rejection.
				log.Error("rate limiter unavailable", zap.Error(err))
				writeError(w, log, gwerrors.Wrap(err, gwerrors.CodeCacheUnavailable, "rate limiter unavailable"))
				return
			}

			writeRateLimitHeaders(w, decision)
			metrics.RateLimitDecisions.WithLabelValues(
				routeClass, string(decision.Scope), strconv.FormatBool(decision.Allowed)).Inc()

			if !decision.Allowed {
				writeError(w, log, decision.Err())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitKey(r *http.Request, strategy ratelimit.KeyStrategy) string {
	if strategy == ratelimit.KeyBySubject {
		if identity := contextx.Identity(r.Context()); identity != nil {
			return "sub:" + identity.Subject
		}
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CheckQuota gates the request on the tenant's metered quota. Tenants
// without the quota type configured are unmetered and pass through.
func CheckQuota(gate *quota.Gate, quotaType string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := contextx.Logger(r.Context())
			tctx := contextx.Tenant(r.Context())

			if err := gate.Check(tctx, quotaType, 1); err != nil {
				log.Warn("quota rejected",
					zap.String("quota", quotaType),
					zap.String("code", string(gwerrors.CodeOf(err))))
				writeError(w, log, err)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The reservation above is advisory. The authoritative debit
			// happens upstream once the downstream call succeeds.
			if tctx != nil && rec.status < http.StatusBadRequest {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := gate.Commit(ctx, tctx.ID, quotaType, 1); err != nil {
					log.Warn("quota commit failed",
						zap.String("tenant_id", tctx.ID),
						zap.String("quota", quotaType),
						zap.Error(err))
				}
			}
		})
	}
}
