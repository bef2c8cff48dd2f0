// Package metrics exposes Prometheus endpoints for the event bus.
//
// Two registries are served on separate listeners: a system registry with Go
// runtime, process and build info collectors (default :9090) and an
// application registry (default :9091) holding the event-bus series.
//
// OperationObserver is the bridge from the observability hook to Prometheus.
// Plugged into the producer, dead-letter router, consumer runtime and
// idempotency stores, it records every operation:
//
//	eventbus_operations_total{component="eventbus",operation="handle",resource="credit.events",status="success",outcome="processed"}
//	eventbus_operations_total{component="eventbus",operation="handle",resource="credit.events",status="error",outcome="dead_lettered"}
//	eventbus_dead_letter_failures_total{original_topic="credit.events"}
//
// All series carry a constant service label.
//
//	m := metrics.NewMetrics(metrics.Config{ServiceName: "carbon-eventbus"})
//	obs := metrics.NewOperationObserver(m)
//	producer := eventbus.NewProducer(cm).WithObserver(obs)
package metrics
