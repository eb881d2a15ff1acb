package redis

import (
	"context"
	"time"
)

// Store is the shared session-store surface the gateway depends on: JSON
// values with TTLs plus a single-round-trip atomic counter. The Redis Cache
// is the production implementation; MemStore backs tests and degraded mode.
type Store interface {
	// GetJSON unmarshals the value at key into value. The boolean reports
	// whether the key was present.
	GetJSON(ctx context.Context, key string, value interface{}) (bool, error)
	// SetJSON marshals value and stores it at key with the given TTL.
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Delete removes the key.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Incr atomically increments the counter at key and returns the
	// post-increment count together with the time remaining until the key
	// expires. The TTL is set on first increment only, so a counter lives
	// exactly as long as its window.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)
}
