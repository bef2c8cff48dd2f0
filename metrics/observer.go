package metrics

import (
	"github.com/aalemi-dev/carbon-eventbus/observability"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// OperationObserver turns observability notifications into Prometheus series:
//
//	<ns>_operations_total{component,operation,resource,status,outcome}
//	<ns>_operation_duration_seconds{component,operation,resource}
//	<ns>_operation_bytes_total{component,operation,resource}
//	<ns>_dead_letter_failures_total{original_topic}
//
// The last series counts dead-letter publishes that failed and were dropped.
type OperationObserver struct {
	operations         Counter
	durations          Histogram
	bytes              Counter
	deadLetterFailures Counter
}

var _ observability.Observer = (*OperationObserver)(nil)

// NewOperationObserver registers the observer series on m.
// Call it once per registry.
func NewOperationObserver(m *Metrics) *OperationObserver {
	ns := m.Namespace()
	return &OperationObserver{
		operations: m.CreateCounter(ns+"_operations_total",
			"Completed event-bus operations by outcome.",
			[]string{"component", "operation", "resource", "status", "outcome"}),
		durations: m.CreateHistogram(ns+"_operation_duration_seconds",
			"Duration of event-bus operations.",
			[]string{"component", "operation", "resource"},
			[]float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}),
		bytes: m.CreateCounter(ns+"_operation_bytes_total",
			"Payload bytes moved by event-bus operations.",
			[]string{"component", "operation", "resource"}),
		deadLetterFailures: m.CreateCounter(ns+"_dead_letter_failures_total",
			"Dead-letter publishes that failed and were dropped.",
			[]string{"original_topic"}),
	}
}

// ObserveOperation implements observability.Observer.
func (o *OperationObserver) ObserveOperation(op observability.OperationContext) {
	status := StatusSuccess
	if op.Error != nil {
		status = StatusError
	}

	o.operations.WithLabelValues(op.Component, op.Operation, op.Resource, status, op.Outcome()).Inc()
	o.durations.WithLabelValues(op.Component, op.Operation, op.Resource).Observe(op.Duration.Seconds())
	if op.Size > 0 {
		o.bytes.WithLabelValues(op.Component, op.Operation, op.Resource).Add(float64(op.Size))
	}

	if op.Operation == "dead_letter" && op.Error != nil {
		original, _ := op.Metadata["originalTopic"].(string)
		o.deadLetterFailures.WithLabelValues(original).Inc()
	}
}
