// Package metrics exposes Prometheus collectors for SearchPipe.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "searchpipe"
)

// Turn outcomes.
const (
	OutcomeSuspended = "suspended"
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeRestarted = "restarted"
	OutcomeError     = "error"
)

// Search results.
const (
	SearchOK    = "ok"
	SearchEmpty = "empty"
	SearchError = "error"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "turns_total",
			Help:      "Total number of handled conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "turn_duration_seconds",
			Help:      "Time spent handling one conversation turn",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of search provider requests by result",
		},
		[]string{"result"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "request_duration_seconds",
			Help:      "Search provider request duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	SelectionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "selection_rejections_total",
			Help:      "Total number of rejected selections by reason",
		},
		[]string{"reason"},
	)

	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_messages_total",
			Help:      "Total number of inbound transport messages by channel and disposition",
		},
		[]string{"channel", "disposition"},
	)
)
