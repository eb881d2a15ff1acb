package ratelimit

import (
	"time"

	"github.com/hscale/adx-gateway/pkg/redis"
)

// Algorithm selects the counting strategy for a route class.
type Algorithm string

const (
	AlgorithmFixed    Algorithm = "fixed"
	AlgorithmDual     Algorithm = "dual"
	AlgorithmAdaptive Algorithm = "adaptive"
)

// Preset is an immutable rate-limit configuration for one route class.
// Presets are loaded once at startup; nothing mutates them afterwards.
type Preset struct {
	Name        string
	Algorithm   Algorithm
	KeyStrategy KeyStrategy
	Window      time.Duration
	Limit       int64
	// Dual-window presets only.
	BurstWindow time.Duration
	BurstLimit  int64
}

// Presets is the enumerated route-class configuration table.
var Presets = map[string]Preset{
	"general": {
		Name:        "general",
		Algorithm:   AlgorithmAdaptive,
		KeyStrategy: KeyBySubject,
		Window:      time.Minute,
		Limit:       120,
	},
	"auth": {
		Name:        "auth",
		Algorithm:   AlgorithmFixed,
		KeyStrategy: KeyByIP,
		Window:      time.Minute,
		Limit:       10,
	},
	"password_reset": {
		Name:        "password_reset",
		Algorithm:   AlgorithmFixed,
		KeyStrategy: KeyByIP,
		Window:      15 * time.Minute,
		Limit:       3,
	},
	"workflow": {
		Name:        "workflow",
		Algorithm:   AlgorithmDual,
		KeyStrategy: KeyBySubject,
		Window:      time.Minute,
		Limit:       20,
		BurstWindow: 10 * time.Second,
		BurstLimit:  5,
	},
	"aggregation": {
		Name:        "aggregation",
		Algorithm:   AlgorithmAdaptive,
		KeyStrategy: KeyBySubject,
		Window:      time.Minute,
		Limit:       30,
	},
}

// Build constructs the limiter for the preset.
func (p Preset) Build(store redis.Store, sampler LoadSampler) Limiter {
	switch p.Algorithm {
	case AlgorithmDual:
		return NewDualWindow(store, p.Name, p.BurstWindow, p.BurstLimit, p.Window, p.Limit)
	case AlgorithmAdaptive:
		return NewAdaptive(store, p.Name, p.Window, p.Limit, sampler, nil)
	default:
		return NewFixedWindow(store, p.Name, p.Window, p.Limit)
	}
}
