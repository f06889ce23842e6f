// Package metrics exposes the small instrumentation surface the runtime
// needs, backed by Prometheus. Collectors are created lazily per name so
// call sites stay one-liners.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter is a monotonically increasing counter.
type Counter interface {
	Inc()
	Add(delta float64)
}

// Gauge is a value that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

// Metrics hands out named counters and gauges.
type Metrics interface {
	Counter(name string, labels ...string) Counter
	Gauge(name string, labels ...string) Gauge
}

type promMetrics struct {
	registry *prometheus.Registry
	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

// New creates a Prometheus-backed Metrics with its own registry.
func New() Metrics {
	return &promMetrics{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

// Registry returns the underlying registry for exposition.
func (m *promMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *promMetrics) Counter(name string, labels ...string) Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames(labels))
		m.registry.MustRegister(vec)
		m.counters[name] = vec
	}
	return vec.WithLabelValues(labelValues(labels)...)
}

func (m *promMetrics) Gauge(name string, labels ...string) Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelNames(labels))
		m.registry.MustRegister(vec)
		m.gauges[name] = vec
	}
	return vec.WithLabelValues(labelValues(labels)...)
}

// labels are alternating name/value pairs.
func labelNames(labels []string) []string {
	names := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		names = append(names, labels[i])
	}
	return names
}

func labelValues(labels []string) []string {
	values := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		values = append(values, labels[i+1])
	}
	return values
}

type noopMetrics struct{}

type noopCounter struct{}

func (noopCounter) Inc()              {}
func (noopCounter) Add(delta float64) {}

type noopGauge struct{}

func (noopGauge) Set(value float64) {}
func (noopGauge) Inc()              {}
func (noopGauge) Dec()              {}

// NewNoop creates a Metrics that records nothing. Intended for tests.
func NewNoop() Metrics {
	return noopMetrics{}
}

func (noopMetrics) Counter(name string, labels ...string) Counter { return noopCounter{} }
func (noopMetrics) Gauge(name string, labels ...string) Gauge     { return noopGauge{} }
