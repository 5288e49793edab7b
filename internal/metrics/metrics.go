// Package metrics provides Prometheus collectors for estimator fits and
// ranking runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricEstimatorFitsTotal    = "docrank_estimator_fits_total"
	MetricRankingRunsTotal      = "docrank_ranking_runs_total"
	MetricRankingRunDuration    = "docrank_ranking_run_duration_seconds"
	MetricExcludedEntitiesTotal = "docrank_excluded_entities_total"
	MetricRankingGroups         = "docrank_ranking_groups"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics is safe for concurrent use. A nil *Metrics discards everything,
// so components can run without a registry.
type Metrics struct {
	fitsTotal     *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	excludedTotal prometheus.Counter
	groups        *prometheus.GaugeVec
}

// NewMetrics creates the collectors without registering them; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		fitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEstimatorFitsTotal,
				Help: "Total number of posterior fits by status",
			},
			[]string{"status"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingRunsTotal,
				Help: "Total number of ranking runs by metric and status",
			},
			[]string{"metric", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRankingRunDuration,
				Help:    "Histogram of ranking run duration in seconds by metric",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
			},
			[]string{"metric"},
		),
		excludedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricExcludedEntitiesTotal,
				Help: "Total number of entities excluded by cohort rules",
			},
		),
		groups: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricRankingGroups,
				Help: "Number of rank groups produced by the last successful run by metric",
			},
			[]string{"metric"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors, mostly for tests.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.fitsTotal,
		m.runsTotal,
		m.runDuration,
		m.excludedTotal,
		m.groups,
	}
}

// AddFits counts n fits with the given status.
func (m *Metrics) AddFits(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fitsTotal.WithLabelValues(status).Add(float64(n))
}

// ObserveRun records a finished ranking run.
func (m *Metrics) ObserveRun(metric, status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(metric, status).Inc()
	m.runDuration.WithLabelValues(metric).Observe(seconds)
}

// AddExcluded counts entities dropped by the cohort filter.
func (m *Metrics) AddExcluded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.excludedTotal.Add(float64(n))
}

// SetGroups records how many rank groups the last run of metric produced.
func (m *Metrics) SetGroups(metric string, n int) {
	if m == nil {
		return
	}
	m.groups.WithLabelValues(metric).Set(float64(n))
}
