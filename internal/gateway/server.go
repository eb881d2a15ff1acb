// Package gateway wires the edge surface: the middleware chain, route
// table, downstream forward, and the WebSocket handshake endpoint.
package gateway

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/internal/config"
	"github.com/hscale/adx-gateway/internal/workflow"
	"github.com/hscale/adx-gateway/pkg/auth"
	"github.com/hscale/adx-gateway/pkg/quota"
	"github.com/hscale/adx-gateway/pkg/ratelimit"
	"github.com/hscale/adx-gateway/pkg/redis"
	"github.com/hscale/adx-gateway/pkg/tenant"
)

// Deps are the composed components the server routes between.
type Deps struct {
	Config    *config.Config
	Log       *zap.Logger
	Validator *auth.Validator
	Resolver  *tenant.Resolver
	Gate      *quota.Gate
	Store     redis.Store
	Sampler   ratelimit.LoadSampler
	WS        http.Handler
	Workflows *workflow.Client
	Streamer  *workflow.Streamer
}

// NewServer builds the HTTP server. baseCtx bounds background work the
// server spawns (workflow progress streams).
func NewServer(baseCtx context.Context, deps Deps) (*http.Server, error) {
	downstream, err := url.Parse(deps.Config.DownstreamURL)
	if err != nil {
		return nil, err
	}

	limiters := make(map[string]ratelimit.Limiter, len(ratelimit.Presets))
	for name, preset := range ratelimit.Presets {
		limiters[name] = preset.Build(deps.Store, deps.Sampler)
	}

	proxy := newProxy(downstream, deps.Config.UpstreamTimeout, deps.Log)
	workflows := newWorkflowHandler(baseCtx, deps.Workflows, deps.Streamer, deps.Log)

	// Authenticated route classes run the full chain; credential routes
	// (login, password reset) are rate limited by client IP only since no
	// identity exists yet.
	authenticated := func(class string, h http.Handler) http.Handler {
		preset := ratelimit.Presets[class]
		return Chain(h,
			RequestID(),
			Logging(deps.Log, class),
			Authenticate(deps.Validator),
			ResolveTenant(deps.Resolver),
			RateLimit(class, preset, limiters[class]),
			CheckQuota(deps.Gate, "api_requests"),
		)
	}
	anonymous := func(class string, h http.Handler) http.Handler {
		preset := ratelimit.Presets[class]
		return Chain(h,
			RequestID(),
			Logging(deps.Log, class),
			RateLimit(class, preset, limiters[class]),
		)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthHandler(deps.Store))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", deps.WS)
	mux.Handle("/api/auth/", anonymous("auth", proxy))
	mux.Handle("/api/password-reset", anonymous("password_reset", proxy))
	mux.Handle("/api/workflows", authenticated("workflow", workflows))
	mux.Handle("/api/workflows/", authenticated("workflow", workflows))
	mux.Handle("/api/aggregations/", authenticated("aggregation", proxy))
	mux.Handle("/api/", authenticated("general", proxy))

	return &http.Server{
		Addr:              ":" + deps.Config.AppPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

func healthHandler(store redis.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		cache := "ok"
		if _, err := store.Exists(ctx, "health:probe"); err != nil {
			cache = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","cache":"` + cache + `"}`))
	})
}
