package metrics

// MetricsCollector creates application series without exposing Prometheus
// types. Everything it creates is registered on the application registry.
//
// This interface is implemented by the concrete *Metrics type.
type MetricsCollector interface {
	// CreateCounter registers a monotonically increasing counter.
	//
	//   c := m.CreateCounter("events_published_total", "Published events", []string{"topic"})
	//   c.WithLabelValues("credit.events").Inc()
	CreateCounter(name, help string, labels []string) Counter

	// CreateHistogram registers a histogram with the given buckets;
	// nil buckets use prometheus.DefBuckets.
	CreateHistogram(name, help string, labels []string, buckets []float64) Histogram
}
