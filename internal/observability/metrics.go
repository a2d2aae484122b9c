package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// screening pipeline.
type Metrics struct {
	ScreeningsStarted   prometheus.Counter
	ScreeningsCompleted prometheus.Counter
	ScreeningsFailed    prometheus.Counter
	ScreeningsInFlight  prometheus.Gauge
	ScreeningDuration   prometheus.Histogram

	RowsParsed           prometheus.Counter
	OccurrencesExtracted prometheus.Counter
	OccurrencesScored    prometheus.Counter

	// Registry metrics.
	RegistryBatches       *prometheus.CounterVec   // labels: mode={ids,names}, outcome={success,error}
	RegistryBatchDuration *prometheus.HistogramVec // labels: mode={ids,names}
	RegistryCache         *prometheus.CounterVec   // labels: mode={ids,names}, result={hit,miss}
	UnmatchedNames        prometheus.Counter

	// Dataset metrics.
	DatasetLookups *prometheus.CounterVec // labels: outcome={hit,miss,absent,error}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ScreeningsStarted,
		m.ScreeningsCompleted,
		m.ScreeningsFailed,
		m.ScreeningsInFlight,
		m.ScreeningDuration,
		m.RowsParsed,
		m.OccurrencesExtracted,
		m.OccurrencesScored,
		m.RegistryBatches,
		m.RegistryBatchDuration,
		m.RegistryCache,
		m.UnmatchedNames,
		m.DatasetLookups,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ScreeningsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "screenings_started_total",
			Help:      "Total screening requests accepted.",
		}),
		ScreeningsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "screenings_completed_total",
			Help:      "Total screening requests that produced a report.",
		}),
		ScreeningsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "screenings_failed_total",
			Help:      "Total screening requests aborted by a fatal error.",
		}),
		ScreeningsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "occ_screening",
			Name:      "screenings_in_flight",
			Help:      "Screening requests currently being processed.",
		}),
		ScreeningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "occ_screening",
			Name:      "screening_duration_seconds",
			Help:      "Duration of a complete parse-resolve-score run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RowsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "rows_parsed_total",
			Help:      "Total data rows parsed from occurrence files.",
		}),
		OccurrencesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "occurrences_extracted_total",
			Help:      "Total unique occurrences after deduplication.",
		}),
		OccurrencesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "occurrences_scored_total",
			Help:      "Total occurrences with populated suitability scores.",
		}),
		RegistryBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "registry_batches_total",
			Help:      "Registry batch calls by mode and outcome.",
		}, []string{"mode", "outcome"}),
		RegistryBatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "occ_screening",
			Name:      "registry_batch_duration_seconds",
			Help:      "WoRMS batch request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"mode"}),
		RegistryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "registry_cache_total",
			Help:      "Registry cache lookups by mode and result.",
		}, []string{"mode", "result"}),
		UnmatchedNames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "unmatched_names_total",
			Help:      "Scientific names with no exact registry match.",
		}),
		DatasetLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occ_screening",
			Name:      "dataset_lookups_total",
			Help:      "Per-taxon dataset lookups by outcome.",
		}, []string{"outcome"}),
	}
}
