// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram

	// Quote metrics
	QuoteRequests    *prometheus.CounterVec
	QuoteLatency     prometheus.Histogram
	HighImpactQuotes prometheus.Counter

	// Strategy lifecycle metrics
	StrategiesCreated *prometheus.CounterVec

	// Worker metrics
	QueueJobsProcessed *prometheus.CounterVec
	QueueDepth         prometheus.Gauge
	JobsRedelivered    prometheus.Counter

	// Storage metrics
	VersionConflicts prometheus.Counter
	EventsEvicted    prometheus.Counter

	// Health metrics
	ActiveStrategies   prometheus.Gauge
	LastSuccessfulExec prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "strategy_engine"
	}

	return &Metrics{
		// Execution metrics
		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executions",
			Name:      "total",
			Help:      "Total number of execution attempts by strategy type, path and outcome",
		}, []string{"strategy_type", "path", "outcome"}),
		ExecutionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executions",
			Name:      "duration_seconds",
			Help:      "End-to-end execution attempt duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Quote metrics
		QuoteRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "quote_requests_total",
			Help:      "Total number of quote requests by status",
		}, []string{"status"}),
		QuoteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "quote_latency_seconds",
			Help:      "Quote request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		HighImpactQuotes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "high_impact_quotes_total",
			Help:      "Total number of quotes exceeding the price impact warning threshold",
		}),

		// Strategy lifecycle metrics
		StrategiesCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategies",
			Name:      "created_total",
			Help:      "Total number of strategies created by type",
		}, []string{"strategy_type"}),

		// Worker metrics
		QueueJobsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_processed_total",
			Help:      "Total number of queue jobs processed by outcome",
		}, []string{"outcome"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Current number of pending jobs in the execution queue",
		}),
		JobsRedelivered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_redelivered_total",
			Help:      "Total number of jobs skipped as duplicate deliveries",
		}),

		// Storage metrics
		VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "version_conflicts_total",
			Help:      "Total number of optimistic concurrency conflicts after retries",
		}),
		EventsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "events_evicted_total",
			Help:      "Total number of events evicted by the per-strategy history cap",
		}),

		// Health metrics
		ActiveStrategies: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "active_strategies",
			Help:      "Current number of strategies in active status",
		}),
		LastSuccessfulExec: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_execution_timestamp",
			Help:      "Unix timestamp of the last successful execution",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordExecution records one execution attempt.
func RecordExecution(strategyType, path, outcome string, seconds float64) {
	DefaultMetrics.ExecutionsTotal.WithLabelValues(strategyType, path, outcome).Inc()
	DefaultMetrics.ExecutionDuration.Observe(seconds)
}

// RecordQuote records a quote request and its latency.
func RecordQuote(status string, seconds float64) {
	DefaultMetrics.QuoteRequests.WithLabelValues(status).Inc()
	DefaultMetrics.QuoteLatency.Observe(seconds)
}

// RecordStrategyCreated records a new strategy by type.
func RecordStrategyCreated(strategyType string) {
	DefaultMetrics.StrategiesCreated.WithLabelValues(strategyType).Inc()
}

// RecordJobProcessed records a queue job outcome.
func RecordJobProcessed(outcome string) {
	DefaultMetrics.QueueJobsProcessed.WithLabelValues(outcome).Inc()
}

// UpdateQueueDepth updates the execution queue depth gauge.
func UpdateQueueDepth(depth int64) {
	DefaultMetrics.QueueDepth.Set(float64(depth))
}

// UpdateActiveStrategies updates the active strategies gauge.
func UpdateActiveStrategies(count int) {
	DefaultMetrics.ActiveStrategies.Set(float64(count))
}
