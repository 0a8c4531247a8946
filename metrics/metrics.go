package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts ingestion outcomes.
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicspot",
		Subsystem: "ingest",
		Name:      "submissions_total",
		Help:      "Total number of processed submissions, labeled by outcome.",
	}, []string{"outcome"})

	// IngestDurationSeconds is end-to-end time per submission.
	IngestDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "civicspot",
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "End-to-end time to process a submission (classify + dedup + write).",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// DuplicateDistanceMeters observes the distance to the matched report
	// when a submission collapses into an existing one.
	DuplicateDistanceMeters = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "civicspot",
		Subsystem: "ingest",
		Name:      "duplicate_distance_meters",
		Help:      "Great-circle distance between a duplicate submission and its matched report.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 40, 50},
	})

	// BrokerConnected is 1 when the event publisher considers itself connected.
	BrokerConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "civicspot",
		Subsystem: "ingest",
		Name:      "broker_connected",
		Help:      "Whether the RabbitMQ event publisher is currently connected (best-effort).",
	})
)

// Outcome labels for SubmissionsTotal.
const (
	OutcomeCreated    = "created"
	OutcomeDuplicate  = "duplicate"
	OutcomeValidation = "validation_error"
	OutcomeTransient  = "transient_error"
	OutcomeError      = "error"
)

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			IngestDurationSeconds,
			DuplicateDistanceMeters,
			BrokerConnected,
		)
	})
}
