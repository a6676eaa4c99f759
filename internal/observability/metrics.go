package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for both
// pipeline stages.
type Metrics struct {
	StageRunning prometheus.Gauge

	// Fetch stage.
	SiteYearsProcessed    *prometheus.CounterVec // labels: outcome={success,failed,cached}
	ObservationsCollected prometheus.Counter
	FetchDuration         prometheus.Histogram
	FetchRetries          prometheus.Counter
	RosterRowsRejected    prometheus.Counter
	CacheLookups          *prometheus.CounterVec // labels: result={hit,miss}
	SinkMessages          prometheus.Counter

	// Aggregation stage.
	RecordsAggregated  prometheus.Counter
	RecordsRejected    prometheus.Counter
	FeatureRowsEmitted prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.StageRunning,
		m.SiteYearsProcessed,
		m.ObservationsCollected,
		m.FetchDuration,
		m.FetchRetries,
		m.RosterRowsRejected,
		m.CacheLookups,
		m.SinkMessages,
		m.RecordsAggregated,
		m.RecordsRejected,
		m.FeatureRowsEmitted,
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
		StageRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_etl",
			Name:      "stage_running",
			Help:      "1 while a pipeline stage is active, 0 otherwise.",
		}),
		SiteYearsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "site_years_processed_total",
			Help:      "Site-year fetches by outcome.",
		}, []string{"outcome"}),
		ObservationsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "observations_collected_total",
			Help:      "Daily observations accumulated into the unified dataset.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one site-year fetch including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "fetch_retries_total",
			Help:      "Weather API request retries.",
		}),
		RosterRowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "roster_rows_rejected_total",
			Help:      "Roster rows dropped by input validation.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "cache_lookups_total",
			Help:      "Fetch cache lookups by result.",
		}, []string{"result"}),
		SinkMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "sink_messages_total",
			Help:      "Site-year series published to the observation sink.",
		}),
		RecordsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "records_aggregated_total",
			Help:      "Daily records consumed by the feature aggregator.",
		}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "records_rejected_total",
			Help:      "Daily records excluded from aggregation.",
		}),
		FeatureRowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "feature_rows_emitted_total",
			Help:      "Wide feature table rows produced.",
		}),
	}
}
