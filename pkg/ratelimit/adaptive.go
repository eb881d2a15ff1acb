package ratelimit

import (
	"context"
	"sort"
	"time"

	"github.com/hscale/adx-gateway/pkg/redis"
)

// LoadSampler reports a system-load signal in [0, 1]. The shipped sampler
// uses heap pressure as a proxy, but the signal is deliberately pluggable:
// memory is neither the only nor necessarily the best input.
type LoadSampler interface {
	Load() float64
}

// LoadThreshold scales the base limit by Factor once the sampled load
// reaches Load.
type LoadThreshold struct {
	Load   float64
	Factor float64
}

// Adaptive evaluates a fixed window whose effective limit shrinks under
// system load: the highest threshold at or below the sampled load wins.
type Adaptive struct {
	inner      *FixedWindow
	sampler    LoadSampler
	baseLimit  int64
	thresholds []LoadThreshold // sorted by Load descending
}

// DefaultThresholds shed half the base limit under high load and three
// quarters under critical load.
var DefaultThresholds = []LoadThreshold{
	{Load: 0.90, Factor: 0.25},
	{Load: 0.75, Factor: 0.50},
}

// NewAdaptive creates an adaptive limiter for the named route class.
func NewAdaptive(store redis.Store, name string, window time.Duration, baseLimit int64, sampler LoadSampler, thresholds []LoadThreshold) *Adaptive {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	sorted := make([]LoadThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Load > sorted[j].Load })

	inner := NewFixedWindow(store, name+":adaptive", window, baseLimit)
	inner.scope = ScopeAdaptive

	return &Adaptive{
		inner:      inner,
		sampler:    sampler,
		baseLimit:  baseLimit,
		thresholds: sorted,
	}
}

// Allow evaluates the fixed window against the current effective limit.
func (l *Adaptive) Allow(ctx context.Context, key string) (Decision, error) {
	return l.inner.allowWithLimit(ctx, key, l.effectiveLimit())
}

func (l *Adaptive) effectiveLimit() int64 {
	if l.sampler == nil {
		return l.baseLimit
	}
	load := l.sampler.Load()
	for _, t := range l.thresholds {
		if load >= t.Load {
			limit := int64(float64(l.baseLimit) * t.Factor)
			if limit < 1 {
				limit = 1
			}
			return limit
		}
	}
	return l.baseLimit
}

var _ Limiter = (*Adaptive)(nil)
