package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Write path metrics
	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fqstore_writes_total",
			Help: "Total number of write_file attempts by outcome",
		},
		[]string{"outcome"},
	)

	WriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fqstore_write_duration_seconds",
			Help:    "Time taken to complete write_file in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Claim / scheduling metrics
	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fqstore_claims_total",
			Help: "Total number of claim_next/claim_batch attempts by outcome",
		},
		[]string{"outcome"},
	)

	ClaimLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fqstore_claim_latency_seconds",
			Help:    "Time taken by claim_next to find and transition a record",
			Buckets: prometheus.DefBuckets,
		},
	)

	ItemsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fqstore_items_completed_total",
			Help: "Total number of items marked completed",
		},
	)

	ItemsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fqstore_items_failed_total",
			Help: "Total number of mark_failed calls by resulting status",
		},
		[]string{"status"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fqstore_queue_depth",
			Help: "Non-terminal item count per tenant by status",
		},
		[]string{"tenant_id", "status"},
	)

	// Quota metrics
	QuotaRefusalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fqstore_quota_refusals_total",
			Help: "Total number of quota refusals by scope (tenant, directory)",
		},
		[]string{"scope"},
	)

	// Storage pool metrics
	VolumesHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fqstore_volumes_healthy",
			Help: "Number of volumes currently reporting healthy",
		},
	)

	CapacityAvailableBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fqstore_capacity_available_bytes",
			Help: "Sum of available_space across healthy volumes",
		},
	)

	// Recovery / reconciler metrics
	RebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fqstore_rebuilds_total",
			Help: "Total number of store rebuilds by tenant outcome",
		},
		[]string{"outcome"},
	)

	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fqstore_reconciliation_duration_seconds",
			Help:    "Duration of one reconciler tick by step",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fqstore_reconciliation_cycles_total",
			Help: "Total number of completed reconciler ticks",
		},
	)

	OrphansReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fqstore_orphans_reclaimed_total",
			Help: "Total number of orphan byte files deleted by the orphan sweep",
		},
	)

	CompactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fqstore_compaction_duration_seconds",
			Help:    "Duration of a per-tenant store compaction pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(
		WritesTotal,
		WriteDuration,
		ClaimsTotal,
		ClaimLatency,
		ItemsCompleted,
		ItemsFailed,
		QueueDepth,
		QuotaRefusalsTotal,
		VolumesHealthy,
		CapacityAvailableBytes,
		RebuildsTotal,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		OrphansReclaimedTotal,
		CompactionDuration,
	)
}

// Handler returns the Prometheus HTTP handler for a reference host to mount.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
