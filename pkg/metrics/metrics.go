package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts requests through the gateway by route class and
	// outcome code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests processed by the gateway",
		},
		[]string{"route_class", "code"},
	)

	// RequestDuration tracks request latency through the gateway.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Time spent processing gateway requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route_class"},
	)

	// RateLimitDecisions counts admission decisions by route class and scope.
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_decisions_total",
			Help: "Rate limit decisions by route class, scope, and outcome",
		},
		[]string{"route_class", "scope", "allowed"},
	)

	// ActiveConnections tracks the number of open WebSocket connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_active_connections",
			Help: "Number of open WebSocket connections",
		},
	)

	// NotificationsSent counts notification fan-out deliveries by target kind.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_notifications_sent_total",
			Help: "Notifications delivered by fan-out target",
		},
		[]string{"target"},
	)
)
