package redis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FallbackStore serves from the primary store and degrades to a secondary
// (normally a MemStore) when the primary errors. Rate limiting keeps
// bounding traffic per process during a Redis outage instead of failing
// every request.
type FallbackStore struct {
	primary  Store
	fallback Store
	log      *zap.Logger
}

// NewFallbackStore creates a FallbackStore.
func NewFallbackStore(primary, fallback Store, log *zap.Logger) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
		log:      log.With(zap.String("module", "fallback-store")),
	}
}

func (s *FallbackStore) GetJSON(ctx context.Context, key string, value interface{}) (bool, error) {
	found, err := s.primary.GetJSON(ctx, key, value)
	if err != nil {
		s.log.Warn("primary store get failed, using fallback", zap.String("key", key), zap.Error(err))
		return s.fallback.GetJSON(ctx, key, value)
	}
	return found, nil
}

func (s *FallbackStore) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := s.primary.SetJSON(ctx, key, value, ttl); err != nil {
		s.log.Warn("primary store set failed, using fallback", zap.String("key", key), zap.Error(err))
		return s.fallback.SetJSON(ctx, key, value, ttl)
	}
	return nil
}

func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if ferr := s.fallback.Delete(ctx, key); ferr != nil {
		return ferr
	}
	return err
}

func (s *FallbackStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.primary.Exists(ctx, key)
	if err != nil {
		s.log.Warn("primary store exists failed, using fallback", zap.String("key", key), zap.Error(err))
		return s.fallback.Exists(ctx, key)
	}
	return ok, nil
}

func (s *FallbackStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	count, remaining, err := s.primary.Incr(ctx, key, ttl)
	if err != nil {
		s.log.Warn("primary store incr failed, using fallback", zap.String("key", key), zap.Error(err))
		return s.fallback.Incr(ctx, key, ttl)
	}
	return count, remaining, nil
}

var _ Store = (*FallbackStore)(nil)
