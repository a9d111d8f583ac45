// Package metrics declares the prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts enroll and verify calls by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceverify_operations_total",
			Help: "Total number of enroll and verify operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// OperationDurationSeconds measures end-to-end latency of enroll and verify.
	OperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faceverify_operation_duration_seconds",
			Help:    "Duration of enroll and verify operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// VerifyDistance records the distance of every completed comparison.
	VerifyDistance = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faceverify_verify_distance",
			Help:    "Euclidean distance between the reference and candidate descriptors",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 1.0, 1.5},
		},
	)

	// ExtractionDurationSeconds measures time spent waiting for the extractor.
	ExtractionDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faceverify_extraction_duration_seconds",
			Help:    "Time from queueing a face extraction to receiving its result",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// ExtractionsInFlight is the number of extractions currently holding a worker.
	ExtractionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faceverify_extractions_in_flight",
			Help: "Number of face extractions currently running",
		},
	)

	// ExtractionTimeoutsTotal counts extractions abandoned at the deadline.
	ExtractionTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faceverify_extraction_timeouts_total",
			Help: "Total number of face extractions that timed out",
		},
	)

	// StoreOperationsTotal counts descriptor store calls by backend and status.
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceverify_store_operations_total",
			Help: "Total number of descriptor store operations",
		},
		[]string{"backend", "method", "status"},
	)

	// BestEffortFailuresTotal counts side writes (crop, audit, cache) that failed.
	BestEffortFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceverify_best_effort_failures_total",
			Help: "Total number of best-effort side writes that failed",
		},
		[]string{"target"},
	)
)

// Status maps an error to the status label used by the counters.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
