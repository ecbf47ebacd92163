package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		require.NoError(t, reg.Register(c))
	}

	m.PredictionRequests.WithLabelValues("heuristic").Inc()
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PredictionRequests.WithLabelValues("heuristic")), 0)
}

func TestMetrics_TestingInstancesAreIndependent(t *testing.T) {
	a, b := NewMetricsForTesting(), NewMetricsForTesting()
	a.CacheDroppedEvents.Inc()

	assert.InDelta(t, 1.0, testutil.ToFloat64(a.CacheDroppedEvents), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.CacheDroppedEvents), 0)
}
