package metrics_test

import (
	"testing"

	"github.com/aalemi-dev/carbon-eventbus/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAppMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	return metrics.NewMetrics(metrics.Config{
		ServiceName:               t.Name(),
		SystemMetricsAddress:      metrics.Ptr(""),
		ApplicationMetricsAddress: metrics.Ptr(":0"),
	})
}

func TestNewMetrics_BothEndpoints(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics(metrics.Config{
		ServiceName:               "carbon-eventbus",
		SystemMetricsAddress:      metrics.Ptr(":0"),
		ApplicationMetricsAddress: metrics.Ptr(":0"),
	})

	assert.NotNil(t, m.SystemRegistry)
	assert.NotNil(t, m.SystemServer)
	assert.NotNil(t, m.ApplicationRegistry)
	assert.NotNil(t, m.ApplicationServer)
	assert.Equal(t, "eventbus", m.Namespace())

	families, err := m.SystemRegistry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewMetrics_Defaults(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics(metrics.Config{Namespace: "carbon"})

	assert.Equal(t, metrics.DefaultSystemMetricsAddress, m.SystemServer.Addr)
	assert.Equal(t, metrics.DefaultApplicationMetricsAddress, m.ApplicationServer.Addr)
	assert.Equal(t, "carbon", m.Namespace())
}

func TestNewMetrics_DisabledEndpoints(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics(metrics.Config{
		SystemMetricsAddress:      metrics.Ptr(""),
		ApplicationMetricsAddress: metrics.Ptr(""),
	})

	assert.Nil(t, m.SystemServer)
	assert.Nil(t, m.SystemRegistry)
	assert.Nil(t, m.ApplicationServer)
	assert.NotNil(t, m.ApplicationRegistry, "observers still need a registry")
}

func TestCreateCounter(t *testing.T) {
	t.Parallel()
	m := newAppMetrics(t)

	c := m.CreateCounter("published_total", "help", []string{"topic"})
	c.WithLabelValues("credit.events").Inc()
	c.WithLabelValues("credit.events").Add(2)

	assert.Equal(t, 1, testutil.CollectAndCount(m.ApplicationRegistry, "published_total"))
}

func TestCreateCounter_Duplicate(t *testing.T) {
	t.Parallel()
	m := newAppMetrics(t)

	m.CreateCounter("dup_total", "help", nil)
	assert.Panics(t, func() { m.CreateCounter("dup_total", "help", nil) })
}

func TestCreateHistogram(t *testing.T) {
	t.Parallel()
	m := newAppMetrics(t)

	h := m.CreateHistogram("latency_seconds", "help", []string{"topic"}, nil)
	h.WithLabelValues("credit.events").Observe(0.2)

	unlabelled := m.CreateHistogram("plain_seconds", "help", nil, []float64{1, 2})
	unlabelled.Observe(1.5)

	assert.Equal(t, 1, testutil.CollectAndCount(m.ApplicationRegistry, "latency_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ApplicationRegistry, "plain_seconds"))
}
