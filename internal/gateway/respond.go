package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
	"github.com/hscale/adx-gateway/pkg/ratelimit"
	"github.com/hscale/adx-gateway/pkg/tenant"
)

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error     errorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

// writeError renders the standard rejection envelope. Rate-limit and
// quota rejections additionally carry Retry-After.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := gwerrors.CodeOf(err)
	status := gwerrors.HTTPStatus(code)
	details := gwerrors.DetailsOf(err)

	if status == http.StatusTooManyRequests {
		if retry, ok := details["retry_after"].(int64); ok && retry > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
		}
	}

	msg := err.Error()
	var gwErr *gwerrors.Error
	if errors.As(err, &gwErr) {
		msg = gwErr.Message
	}

	writeJSON(w, log, status, errorEnvelope{
		Error:     errorBody{Code: string(code), Message: msg, Details: details},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("response encode failed", zap.Error(err))
	}
}

// writeRateLimitHeaders is set on every limited route so callers can
// self-throttle, not only on rejection.
func writeRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))
}

func writeTenantHeaders(w http.ResponseWriter, tctx *tenant.Context) {
	w.Header().Set("X-Tenant-ID", tctx.ID)
	w.Header().Set("X-Tenant-Name", tctx.Name)
	w.Header().Set("X-Tenant-Tier", string(tctx.Tier))
}
