package ratelimit

import (
	"context"
	"time"

	"github.com/hscale/adx-gateway/pkg/redis"
)

// DualWindow composes a short burst window with a long sustained window. A
// request is rejected if it exceeds either limit. Both counters are always
// incremented together, so sustained usage keeps accruing even while bursts
// stay within bounds.
type DualWindow struct {
	burst     *FixedWindow
	sustained *FixedWindow
}

// NewDualWindow creates a dual-window limiter for the named route class.
func NewDualWindow(store redis.Store, name string, burstWindow time.Duration, burstLimit int64, sustainedWindow time.Duration, sustainedLimit int64) *DualWindow {
	burst := NewFixedWindow(store, name+":burst", burstWindow, burstLimit)
	burst.scope = ScopeBurst
	sustained := NewFixedWindow(store, name+":sustained", sustainedWindow, sustainedLimit)
	sustained.scope = ScopeSustained

	return &DualWindow{burst: burst, sustained: sustained}
}

// Allow increments both counters and admits the request only if both
// windows are within bounds. A rejection reports the window that tripped;
// an admission reports the tighter of the two so callers can self-throttle.
func (l *DualWindow) Allow(ctx context.Context, key string) (Decision, error) {
	burst, err := l.burst.Allow(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	sustained, err := l.sustained.Allow(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	if !burst.Allowed {
		return burst, nil
	}
	if !sustained.Allowed {
		return sustained, nil
	}
	if sustained.Remaining < burst.Remaining {
		return sustained, nil
	}
	return burst, nil
}

var _ Limiter = (*DualWindow)(nil)

// setClock aligns both windows on one clock. Test hook.
func (l *DualWindow) setClock(now func() time.Time) {
	l.burst.now = now
	l.sustained.now = now
}
