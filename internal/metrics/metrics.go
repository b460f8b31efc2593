// Package metrics defines the Prometheus instruments for the real-time
// distribution engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session metrics
var (
	// ConnectedSessions tracks the number of live client sessions.
	ConnectedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_connected_sessions",
			Help: "Number of live client sessions",
		},
	)

	// StaleEvictionsTotal tracks sessions evicted by the liveness sweep.
	StaleEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_stale_evictions_total",
			Help: "Sessions evicted because their liveness timestamp aged out",
		},
	)

	// DeliveryFailuresTotal tracks pushes that failed and removed a session.
	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_delivery_failures_total",
			Help: "Failed pushes that caused a session to be removed",
		},
	)

	// ForcedLogoutsTotal tracks force-logout operations.
	ForcedLogoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_forced_logouts_total",
			Help: "Force-logout operations executed",
		},
	)
)

// Channel metrics
var (
	// LiveChannels tracks lazily-created channels by kind (logs/stats).
	LiveChannels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_live_channels",
			Help: "Lazily-created broadcast channels currently alive",
		},
		[]string{"kind"},
	)

	// BroadcastsTotal tracks broadcast invocations by channel kind.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_broadcasts_total",
			Help: "Broadcast invocations by channel kind",
		},
		[]string{"channel"},
	)

	// MessagesDeliveredTotal tracks successfully delivered messages by type.
	MessagesDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_messages_delivered_total",
			Help: "Messages accepted by a client writer, by message type",
		},
		[]string{"type"},
	)

	// SubscriptionDenialsTotal tracks permission-denied subscription requests.
	SubscriptionDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_subscription_denials_total",
			Help: "Subscription requests denied by team-based access control",
		},
	)
)

// Scheduler metrics
var (
	// HeartbeatTicksTotal counts heartbeat loop ticks.
	HeartbeatTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_heartbeat_ticks_total",
			Help: "Heartbeat loop ticks",
		},
	)

	// MetricsTickDuration tracks the duration of one periodic metrics broadcast.
	MetricsTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_metrics_tick_duration_seconds",
			Help:    "Duration of one periodic metrics broadcast",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// DependencyFailuresTotal tracks collaborator failures during broadcast ticks.
	DependencyFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_dependency_failures_total",
			Help: "Collaborator failures during broadcast ticks, by collaborator",
		},
		[]string{"collaborator"},
	)
)

// Redis adapter metrics
var (
	// RedisCircuitState tracks the stats-source circuit breaker state
	// (0=closed, 1=half-open, 2=open).
	RedisCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_circuit_breaker_state",
			Help: "Stats-source circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// RedisCircuitOpensTotal tracks circuit breaker open transitions.
	RedisCircuitOpensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_circuit_breaker_opens_total",
			Help: "Stats-source circuit breaker open transitions",
		},
	)
)
