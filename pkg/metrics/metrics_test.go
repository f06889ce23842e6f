package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromMetrics(t *testing.T) {
	m := New()

	t.Run("counter accumulates per label set", func(t *testing.T) {
		m.Counter("events_total", "kind", "message").Inc()
		m.Counter("events_total", "kind", "message").Add(2)
		m.Counter("events_total", "kind", "notice").Inc()

		reg := m.(interface{ Registry() *prometheus.Registry }).Registry()
		assert.InDelta(t, 3, testutil.ToFloat64(
			mustCounter(t, m, "events_total", "kind", "message")), 1e-9)
		families, err := reg.Gather()
		require.NoError(t, err)
		require.Len(t, families, 1)
	})

	t.Run("gauge moves both ways", func(t *testing.T) {
		g := m.Gauge("plugins_running")
		g.Set(5)
		g.Inc()
		g.Dec()
		g.Dec()
		assert.InDelta(t, 4, testutil.ToFloat64(mustGauge(t, m, "plugins_running")), 1e-9)
	})
}

func mustCounter(t *testing.T, m Metrics, name string, labels ...string) prometheus.Collector {
	t.Helper()
	c, ok := m.Counter(name, labels...).(prometheus.Collector)
	require.True(t, ok)
	return c
}

func mustGauge(t *testing.T, m Metrics, name string, labels ...string) prometheus.Collector {
	t.Helper()
	g, ok := m.Gauge(name, labels...).(prometheus.Collector)
	require.True(t, ok)
	return g
}

func TestNoop(t *testing.T) {
	m := NewNoop()
	m.Counter("x").Inc()
	m.Gauge("y").Set(1)
}
