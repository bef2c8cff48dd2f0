package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CreateCounter registers a counter vector on the application registry.
// It panics if a series with the same name is already registered.
func (m *Metrics) CreateCounter(name, help string, labels []string) Counter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	m.wrappedApplicationRegisterer.MustRegister(vec)
	return &counterVec{vec: vec}
}

// CreateHistogram registers a histogram vector on the application registry.
func (m *Metrics) CreateHistogram(name, help string, labels []string, buckets []float64) Histogram {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	m.wrappedApplicationRegisterer.MustRegister(vec)
	return &histogramVec{vec: vec}
}

// Namespace is the prefix used for operation observer series.
func (m *Metrics) Namespace() string {
	return m.namespace
}
