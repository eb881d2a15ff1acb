// Package ratelimit implements the gateway's admission-control algorithms:
// fixed window, dual window (burst + sustained), and load-adaptive. All
// counters live in the shared session store with a TTL equal to their
// window; every increment is a single atomic round trip.
package ratelimit

import (
	"context"
	"time"

	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
)

// KeyStrategy selects the client key a route class is limited by.
type KeyStrategy string

const (
	// KeyBySubject keys limits by the authenticated subject, falling back
	// to the client IP for unauthenticated requests.
	KeyBySubject KeyStrategy = "subject"
	// KeyByIP keys limits by the client IP only.
	KeyByIP KeyStrategy = "ip"
)

// Scope identifies which algorithm produced a decision.
type Scope string

const (
	ScopeFixed     Scope = "fixed"
	ScopeBurst     Scope = "burst"
	ScopeSustained Scope = "sustained"
	ScopeAdaptive  Scope = "adaptive"
)

// Decision is the outcome of an admission check. Limit, Remaining, and
// ResetAt are always populated so callers can self-throttle.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
	Scope      Scope
}

// Err converts a rejecting decision into its taxonomy error. Allowed
// decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}

	details := map[string]interface{}{
		"limit":       d.Limit,
		"retry_after": int64(d.RetryAfter.Seconds()),
		"reset_at":    d.ResetAt.Unix(),
	}

	switch d.Scope {
	case ScopeBurst:
		return gwerrors.ErrBurstRateLimitExceeded.WithDetails(details)
	case ScopeSustained:
		return gwerrors.ErrSustainedRateLimitExceeded.WithDetails(details)
	case ScopeAdaptive:
		return gwerrors.ErrAdaptiveRateLimitExceeded.WithDetails(details)
	default:
		return gwerrors.ErrRateLimitExceeded.WithDetails(details)
	}
}

// Limiter is an admission-control algorithm. Allow consumes one request
// unit for the key and reports whether it is permitted. Implementations
// must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
