package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broadcast hub metrics
var (
	// HubConnectedClients tracks the number of currently registered live connections
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Number of currently registered live connections",
		},
	)

	// HubBroadcastsTotal tracks completed broadcast calls
	HubBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_broadcasts_total",
			Help: "Total broadcast calls processed by the hub",
		},
	)

	// HubPrunedConnectionsTotal tracks connections removed after a failed send
	HubPrunedConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_pruned_connections_total",
			Help: "Total connections pruned after a failed or refused send",
		},
	)

	// HubBroadcastDuration tracks fan-out duration per broadcast in seconds
	HubBroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_broadcast_duration_seconds",
			Help:    "Fan-out duration per broadcast call in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// HubCommandChannelDepth tracks the hub actor's command backlog
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current depth of the hub command channel",
		},
	)

	// HubStopTimeoutsTotal tracks forced hub shutdowns
	HubStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_stop_timeouts_total",
			Help: "Total hub stops that exceeded the graceful timeout",
		},
	)
)

// WebSocket connection metrics
var (
	// WebSocketMessageSendDuration tracks individual send latency in seconds
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .001, .01, .1, 1, 5},
		},
	)

	// WebSocketPingFailures tracks failed keepalive pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures",
		},
	)
)

// HTTP and board metrics
var (
	// HTTPErrorsTotal tracks HTTP errors by error type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)

	// SessionsCreatedTotal tracks fresh anonymous sessions issued by the resolver
	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total fresh sessions created by the session resolver",
		},
	)

	// MessagesCreatedTotal tracks persisted posts
	MessagesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_created_total",
			Help: "Total messages persisted",
		},
	)

	// MessagesDeletedTotal tracks author-initiated deletions
	MessagesDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_deleted_total",
			Help: "Total messages deleted by their authors",
		},
	)
)

// Store metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
