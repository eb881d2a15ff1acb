package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/pkg/contextx"
	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
)

// newProxy builds the reverse proxy that forwards authorized,
// quota-checked requests to the downstream business service.
func newProxy(target *url.URL, timeout time.Duration, log *zap.Logger) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = &http.Transport{
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   32,
	}

	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Header.Set("X-Request-ID", contextx.RequestID(r.Context()))
		if identity := contextx.Identity(r.Context()); identity != nil {
			r.Header.Set("X-User-ID", identity.Subject)
		}
		if tctx := contextx.Tenant(r.Context()); tctx != nil {
			r.Header.Set("X-Tenant-ID", tctx.ID)
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("downstream forward failed",
			zap.String("request_id", contextx.RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, log, gwerrors.Wrap(err, gwerrors.CodeUpstreamUnavailable, "downstream service unavailable"))
	}

	return proxy
}
