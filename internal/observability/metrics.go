package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingest stages.
type Metrics struct {
	// Load stage.
	RecordsEnumerated prometheus.Counter
	Classifications   *prometheus.CounterVec // labels: outcome={new,duplicate,malformed}
	RowsWritten       prometheus.Counter
	MarkerTransitions *prometheus.CounterVec // labels: state={processed,duplicate}
	RecordErrors      *prometheus.CounterVec // labels: kind={transient,malformed,marker}
	EntityErrors      prometheus.Counter
	KeyCache          *prometheus.CounterVec // labels: result={hit,miss}

	// Fetch stage.
	FetchRequests *prometheus.CounterVec // labels: outcome={success,error}
	FetchDuration prometheus.Histogram

	// Reconcile stage.
	RowsReconciled prometheus.Counter

	// Stage runs.
	StageRuns     *prometheus.CounterVec   // labels: stage, result={ok,failed}
	StageDuration *prometheus.HistogramVec // labels: stage
	StageRunning  *prometheus.GaugeVec     // labels: stage

	// Trigger transports.
	Triggers *prometheus.CounterVec // labels: source={http,kafka,cron,function}, result={accepted,rejected}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsEnumerated,
		m.Classifications,
		m.RowsWritten,
		m.MarkerTransitions,
		m.RecordErrors,
		m.EntityErrors,
		m.KeyCache,
		m.FetchRequests,
		m.FetchDuration,
		m.RowsReconciled,
		m.StageRuns,
		m.StageDuration,
		m.StageRunning,
		m.Triggers,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsEnumerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_enumerated_total",
			Help:      "Unprocessed staged records listed for ingestion.",
		}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_classified_total",
			Help:      "Dedup decisions by outcome.",
		}, []string{"outcome"}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Warehouse rows written for new records.",
		}),
		MarkerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marker_transitions_total",
			Help:      "Staging marker transitions by terminal state.",
		}, []string{"state"}),
		RecordErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_errors_total",
			Help:      "Per-record failures by kind.",
		}, []string{"kind"}),
		EntityErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_errors_total",
			Help:      "Entities whose processing was aborted.",
		}),
		KeyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_cache_total",
			Help:      "Known natural key cache lookups by result.",
		}, []string{"result"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Weather provider fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Weather provider request duration including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RowsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_reconciled_total",
			Help:      "Duplicate warehouse rows removed by reconciliation.",
		}),
		StageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage invocations by stage and result.",
		}, []string{"stage", "result"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of a complete stage run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		StageRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_running",
			Help:      "Number of in-flight runs per stage.",
		}, []string{"stage"}),
		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Stage trigger commands received by source and result.",
		}, []string{"source", "result"}),
	}
}
