package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.AddFits(StatusSuccess, 3)
	m.ObserveRun("MAP", StatusSuccess, 0.2)
	m.AddExcluded(1)
	m.SetGroups("MAP", 2)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, name := range []string{
		MetricEstimatorFitsTotal,
		MetricRankingRunsTotal,
		MetricRankingRunDuration,
		MetricExcludedEntitiesTotal,
		MetricRankingGroups,
	} {
		assert.True(t, names[name], name)
	}
}

func TestMetrics_RegisterTwice(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}

func TestMetrics_Values(t *testing.T) {
	m := NewMetrics()

	m.AddFits(StatusSuccess, 4)
	m.AddFits(StatusFailure, 1)
	m.AddFits(StatusSuccess, 0)
	m.ObserveRun("CREDIBLE_INTERVAL", StatusSuccess, 0.01)
	m.ObserveRun("CREDIBLE_INTERVAL", StatusSuccess, 0.02)
	m.ObserveRun("MAP", StatusFailure, 0.01)
	m.AddExcluded(2)
	m.AddExcluded(-1)
	m.SetGroups("CREDIBLE_INTERVAL", 3)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.fitsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fitsTotal.WithLabelValues(StatusFailure)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("CREDIBLE_INTERVAL", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("MAP", StatusFailure)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.excludedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.groups.WithLabelValues("CREDIBLE_INTERVAL")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.runDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddFits(StatusSuccess, 1)
		m.ObserveRun("MAP", StatusSuccess, 1)
		m.AddExcluded(1)
		m.SetGroups("MAP", 1)
	})
}
