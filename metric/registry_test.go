package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistryRegistersCoreSet(t *testing.T) {
	r := NewMetricsRegistry()
	require.NotNil(t, r.Metrics)

	// Core metrics must be usable immediately.
	r.Metrics.MessagesConsumed.WithLabelValues("t-1").Inc()
	r.Metrics.MessagesDropped.WithLabelValues("envelope_invalid").Inc()
	r.Metrics.Executions.WithLabelValues("success").Add(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.MessagesConsumed.WithLabelValues("t-1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Metrics.Executions.WithLabelValues("success")))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "petroedge",
		Name:      "test_counter_total",
		Help:      "test",
	})

	require.NoError(t, r.Register("consumer", "test_counter", counter))
	assert.Error(t, r.Register("consumer", "test_counter", counter))
}

func TestUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "petroedge",
		Name:      "test_gauge",
		Help:      "test",
	})

	require.NoError(t, r.Register("engine", "test_gauge", gauge))
	assert.True(t, r.Unregister("engine", "test_gauge"))
	assert.False(t, r.Unregister("engine", "test_gauge"))

	// Re-registration after unregister succeeds.
	assert.NoError(t, r.Register("engine", "test_gauge", gauge))
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewMetricsRegistry()
	assert.NotNil(t, r.Handler())
}
