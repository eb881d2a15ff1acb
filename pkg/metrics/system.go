package metrics

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HeapStats tracks heap memory metrics.
	HeapStats = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heap_stats",
			Help: "Heap memory statistics",
		},
		[]string{"type"},
	)

	// SystemGauges tracks runtime metrics.
	SystemGauges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "system_stats",
			Help: "System statistics",
		},
		[]string{"type"},
	)
)

// HeapLoadSampler samples heap pressure (HeapAlloc/HeapSys) on a fixed
// interval and exposes the last sample as the load signal for the adaptive
// rate limiter. Load reads are lock-free so the request hot path never
// pays for a ReadMemStats call.
type HeapLoadSampler struct {
	interval time.Duration
	load     atomic.Uint64 // math.Float64bits of the last sample
}

// NewHeapLoadSampler creates a sampler; Run must be started for the signal
// to update.
func NewHeapLoadSampler(interval time.Duration) *HeapLoadSampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &HeapLoadSampler{interval: interval}
	s.sample()
	return s
}

// Load returns the most recent heap-pressure sample in [0, 1].
func (s *HeapLoadSampler) Load() float64 {
	return math.Float64frombits(s.load.Load())
}

// Run samples until the context is cancelled. It runs on its own schedule,
// independent of request traffic.
func (s *HeapLoadSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *HeapLoadSampler) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	load := 0.0
	if stats.HeapSys > 0 {
		load = float64(stats.HeapAlloc) / float64(stats.HeapSys)
	}
	s.load.Store(math.Float64bits(load))

	HeapStats.WithLabelValues("alloc").Set(float64(stats.HeapAlloc))
	HeapStats.WithLabelValues("sys").Set(float64(stats.HeapSys))
	HeapStats.WithLabelValues("inuse").Set(float64(stats.HeapInuse))
	HeapStats.WithLabelValues("objects").Set(float64(stats.HeapObjects))
	SystemGauges.WithLabelValues("goroutines").Set(float64(runtime.NumGoroutine()))
	SystemGauges.WithLabelValues("load").Set(load)
}
