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
	// Fetch metrics
	ObservationsFetched prometheus.Counter
	FetchFailures       *prometheus.CounterVec
	FetchRetries        prometheus.Counter
	FetchLatency        *prometheus.HistogramVec

	// Normalization metrics
	ObservationsStored   prometheus.Counter
	ObservationsRejected *prometheus.CounterVec
	DuplicatesSuppressed prometheus.Counter
	DedupWindowSize      prometheus.Gauge

	// Change detection metrics
	EventsDetected  *prometheus.CounterVec
	AlertsDelivered prometheus.Counter
	AlertsFailed    prometheus.Counter
	AlertsDropped   prometheus.Counter
	AlertQueueDepth prometheus.Gauge

	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pricewatch"
	}

	return &Metrics{
		// Fetch metrics
		ObservationsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "observations_total",
			Help:      "Total number of observations fetched from sources",
		}),
		FetchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "failures_total",
			Help:      "Total number of terminal fetch failures by source and kind",
		}, []string{"source", "kind"}),
		FetchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Total number of fetch retry attempts",
		}),
		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "latency_seconds",
			Help:      "Fetch attempt latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		// Normalization metrics
		ObservationsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "observations_stored_total",
			Help:      "Total number of observations appended to the raw layer",
		}),
		ObservationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "observations_rejected_total",
			Help:      "Total number of observations rejected by validation, by reason",
		}, []string{"reason"}),
		DuplicatesSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of exact duplicates suppressed",
		}),
		DedupWindowSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "dedup_window_size",
			Help:      "Current number of entries in the dedup window",
		}),

		// Change detection metrics
		EventsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "events_total",
			Help:      "Total number of price events detected by classification",
		}, []string{"classification"}),
		AlertsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "delivered_total",
			Help:      "Total number of alerts delivered to the sink",
		}),
		AlertsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "failed_total",
			Help:      "Total number of alerts that exhausted delivery retries",
		}),
		AlertsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dropped_total",
			Help:      "Total number of alerts dropped due to a full queue",
		}),
		AlertQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "queue_depth",
			Help:      "Current number of alerts waiting in the dispatch queue",
		}),

		// Cycle metrics
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of fetch cycles by status",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Fetch cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last successful fetch cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordObservationsFetched adds to the fetched observations counter.
func RecordObservationsFetched(n int) {
	DefaultMetrics.ObservationsFetched.Add(float64(n))
}

// RecordFetchFailure increments the terminal failure counter.
func RecordFetchFailure(source, kind string) {
	DefaultMetrics.FetchFailures.WithLabelValues(source, kind).Inc()
}

// RecordFetchRetry increments the retry counter.
func RecordFetchRetry() {
	DefaultMetrics.FetchRetries.Inc()
}

// ObserveFetchLatency records one fetch attempt's latency.
func ObserveFetchLatency(source string, seconds float64) {
	DefaultMetrics.FetchLatency.WithLabelValues(source).Observe(seconds)
}

// RecordCycle records one fetch cycle's outcome and duration.
func RecordCycle(status string, seconds float64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(seconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulCycle.SetToCurrentTime()
	}
}

// RecordObservationStored increments the raw layer append counter.
func RecordObservationStored() {
	DefaultMetrics.ObservationsStored.Inc()
}

// RecordRejection increments the rejection counter for a reason.
func RecordRejection(reason string) {
	DefaultMetrics.ObservationsRejected.WithLabelValues(reason).Inc()
}

// RecordDuplicate increments the suppressed duplicates counter.
func RecordDuplicate() {
	DefaultMetrics.DuplicatesSuppressed.Inc()
}

// RecordEventDetected increments the event counter for a classification.
func RecordEventDetected(classification string) {
	DefaultMetrics.EventsDetected.WithLabelValues(classification).Inc()
}

// SetDedupWindowSize updates the dedup window occupancy gauge.
func SetDedupWindowSize(size int) {
	DefaultMetrics.DedupWindowSize.Set(float64(size))
}

// RecordAlertDelivered increments the delivered alerts counter.
func RecordAlertDelivered() {
	DefaultMetrics.AlertsDelivered.Inc()
}

// RecordAlertFailed increments the failed alerts counter.
func RecordAlertFailed() {
	DefaultMetrics.AlertsFailed.Inc()
}

// RecordAlertDropped increments the dropped alerts counter.
func RecordAlertDropped() {
	DefaultMetrics.AlertsDropped.Inc()
}

// SetAlertQueueDepth updates the dispatch queue gauge.
func SetAlertQueueDepth(depth int) {
	DefaultMetrics.AlertQueueDepth.Set(float64(depth))
}
