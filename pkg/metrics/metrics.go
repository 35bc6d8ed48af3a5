// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchingRunsTotal tracks matching pipeline runs by terminal status
	MatchingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "runs_total",
			Help:      "Total number of matching pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	// MatchingRunDuration tracks matching run duration in seconds
	MatchingRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "run_duration_seconds",
			Help:      "Duration of matching pipeline runs in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		},
	)

	// UsersProcessed tracks users marked processed by the pipeline
	UsersProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "users_processed_total",
			Help:      "Total number of users marked processed by the pipeline",
		},
	)

	// MatchesCreated tracks match decisions written by the pipeline
	MatchesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "matches_created_total",
			Help:      "Total number of match decisions written by the pipeline",
		},
	)

	// UserFailures tracks users whose evaluation failed and were left for retry
	UserFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "user_failures_total",
			Help:      "Total number of users left unprocessed after an evaluation failure",
		},
	)

	// OracleCallsTotal tracks oracle calls by outcome
	OracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Total number of oracle calls by outcome",
		},
		[]string{"outcome"},
	)

	// OracleFallbacksTotal tracks candidates resolved by the rule-based fallback
	OracleFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "oracle",
			Name:      "fallbacks_total",
			Help:      "Total number of candidates resolved by the rule-based fallback",
		},
	)

	// IngestRowsTotal tracks CSV ingest rows by outcome
	IngestRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "rows_total",
			Help:      "Total number of ingested CSV rows by outcome",
		},
		[]string{"outcome"},
	)

	// NotificationsSentTotal tracks match notifications sent
	NotificationsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of match notifications sent",
		},
	)
)
