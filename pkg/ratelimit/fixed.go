package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/hscale/adx-gateway/pkg/redis"
)

// FixedWindow counts requests in fixed windows of equal size. The counter
// key embeds the window index (floor(now/window)), so each window gets a
// fresh counter and the old one expires with its TTL.
type FixedWindow struct {
	store  redis.Store
	keys   *redis.KeyBuilder
	name   string
	window time.Duration
	limit  int64
	scope  Scope
	now    func() time.Time
}

// NewFixedWindow creates a fixed-window limiter for the named route class.
func NewFixedWindow(store redis.Store, name string, window time.Duration, limit int64) *FixedWindow {
	return &FixedWindow{
		store:  store,
		keys:   redis.NewKeyBuilder(redis.NamespaceRate, redis.ContextAuth),
		name:   name,
		window: window,
		limit:  limit,
		scope:  ScopeFixed,
		now:    time.Now,
	}
}

// Allow increments the key's counter for the current window and admits the
// request iff the post-increment count is within the limit.
func (l *FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	return l.allowWithLimit(ctx, key, l.limit)
}

func (l *FixedWindow) allowWithLimit(ctx context.Context, key string, limit int64) (Decision, error) {
	now := l.now()
	windowIndex := now.UnixNano() / l.window.Nanoseconds()
	counterKey := l.keys.Build(l.name, fmt.Sprintf("%s:%d", key, windowIndex))

	count, _, err := l.store.Incr(ctx, counterKey, l.window)
	if err != nil {
		return Decision{}, err
	}

	resetAt := time.Unix(0, (windowIndex+1)*l.window.Nanoseconds())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		Scope:     l.scope,
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d, nil
}

var _ Limiter = (*FixedWindow)(nil)
