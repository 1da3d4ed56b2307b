// Package metrics provides Prometheus metrics for the groanboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds all Prometheus metrics for the service.
type Manager struct {
	namespace string
	registry  prometheus.Registerer

	// Ingestion
	ratingsAccepted prometheus.Counter
	ratingsRejected prometheus.Counter

	// Change-feed processing
	recordsProcessed prometheus.Counter
	recordsSkipped   prometheus.Counter
	recordsFailed    prometheus.Counter
	itemsPromoted    prometheus.Counter

	// Summary generation
	summaryRegenerations prometheus.Counter
	summaryDuration      prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry()

func init() {
	globalManager = NewManager(customRegistry)
}

// NewManager creates a metrics manager registering on the given registry.
func NewManager(registry prometheus.Registerer) *Manager {
	m := &Manager{
		namespace: "groanboard",
		registry:  registry,
	}

	auto := promauto.With(m.registry)

	m.ratingsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "ratings_accepted_total",
		Help:      "Total number of ratings accepted at submission",
	})
	m.ratingsRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "ratings_rejected_total",
		Help:      "Total number of ratings rejected by validation",
	})

	m.recordsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "changefeed_records_processed_total",
		Help:      "Total number of change-feed records folded into rollups",
	})
	m.recordsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "changefeed_records_skipped_total",
		Help:      "Total number of change-feed records skipped (non-insert or invalid)",
	})
	m.recordsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "changefeed_records_failed_total",
		Help:      "Total number of change-feed records that failed to apply",
	})
	m.itemsPromoted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "items_promoted_total",
		Help:      "Total number of items promoted into the top-performers ranking",
	})

	m.summaryRegenerations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "summary_regenerations_total",
		Help:      "Total number of full summary recomputes",
	})
	m.summaryDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "summary_duration_seconds",
		Help:      "Full summary recompute duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint, method and status",
		},
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	return m
}

// RecordRatingAccepted increments the accepted ratings counter.
func RecordRatingAccepted() {
	globalManager.ratingsAccepted.Inc()
}

// RecordRatingRejected increments the rejected ratings counter.
func RecordRatingRejected() {
	globalManager.ratingsRejected.Inc()
}

// RecordBatchOutcome folds one change-feed batch report into the counters.
func RecordBatchOutcome(processed, skipped, failed int) {
	globalManager.recordsProcessed.Add(float64(processed))
	globalManager.recordsSkipped.Add(float64(skipped))
	globalManager.recordsFailed.Add(float64(failed))
}

// RecordItemPromoted increments the promotion counter.
func RecordItemPromoted() {
	globalManager.itemsPromoted.Inc()
}

// RecordSummaryRegenerated records one full summary recompute.
func RecordSummaryRegenerated(durationSeconds float64) {
	globalManager.summaryRegenerations.Inc()
	globalManager.summaryDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records one HTTP request with its duration in seconds.
func RecordHTTPRequest(endpoint, method, statusCode string, durationSeconds float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationSeconds)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
