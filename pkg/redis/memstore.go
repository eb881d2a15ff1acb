package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store implementation. It backs tests and serves
// as degraded-mode fallback when Redis is unreachable: a process-local
// counter still bounds request rates, just not across instances.
type MemStore struct {
	mu       sync.Mutex
	values   map[string]memValue
	counters map[string]memCounter
	now      func() time.Time
}

type memValue struct {
	data      []byte
	expiresAt time.Time
}

type memCounter struct {
	count   int64
	resetAt time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		values:   make(map[string]memValue),
		counters: make(map[string]memCounter),
		now:      time.Now,
	}
}

// SetJSON marshals value and stores it with the given TTL. A zero TTL means
// no expiry.
func (s *MemStore) SetJSON(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := memValue{data: data}
	if ttl > 0 {
		v.expiresAt = s.now().Add(ttl)
	}
	s.values[key] = v
	return nil
}

// GetJSON retrieves a value, dropping it if expired.
func (s *MemStore) GetJSON(_ context.Context, key string, value interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if !v.expiresAt.IsZero() && s.now().After(v.expiresAt) {
		delete(s.values, key)
		return false, nil
	}
	if err := json.Unmarshal(v.data, value); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

// Delete removes the key.
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.counters, key)
	return nil
}

// Exists reports whether the key is present and unexpired.
func (s *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	var v json.RawMessage
	return s.GetJSON(ctx, key, &v)
}

// Incr increments the counter at key, starting a fresh window when the
// previous one has elapsed.
func (s *MemStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || now.After(c.resetAt) {
		c = memCounter{resetAt: now.Add(ttl)}
	}
	c.count++
	s.counters[key] = c
	return c.count, c.resetAt.Sub(now), nil
}

var _ Store = (*MemStore)(nil)
var _ Store = (*Cache)(nil)
