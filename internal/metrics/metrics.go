// Package metrics provides Prometheus instrumentation for MCS.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Messaging metrics.
var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcs_messages_sent_total",
		Help: "Total number of send calls accepted, labeled direct or broadcast; auto-CC copies are not counted separately.",
	}, []string{"kind"})

	UnreadGateBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcs_unread_gate_blocks_total",
		Help: "Total number of send calls rejected by the sender-has-unread-mail gate.",
	})
)

// Session metrics.
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcs_active_sessions",
		Help: "Number of currently registered, connected sessions.",
	})

	NotifierPushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcs_notifier_push_failures_total",
		Help: "Total number of notification pushes that failed and evicted their session.",
	})
)

// Task metrics.
var (
	TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcs_task_transitions_total",
		Help: "Total number of task state transitions, labeled by resulting status.",
	}, []string{"status"})
)

// Handshake metrics.
var (
	HandshakesInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcs_handshakes_initiated_total",
		Help: "Total number of handshakes initiated.",
	})

	HandshakesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcs_handshakes_completed_total",
		Help: "Total number of handshakes that reached status complete.",
	})
)

// RPC metrics.
var (
	RPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcs_rpc_requests_total",
		Help: "Total number of dispatched RPC calls, labeled by method.",
	}, []string{"method"})

	RPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcs_rpc_request_duration_seconds",
		Help:    "RPC handler duration in seconds, labeled by method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)
