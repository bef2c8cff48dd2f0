package observability

import "time"

// Observer receives a notification every time an event-bus component finishes
// an operation against Kafka or an idempotency backend. Observers turn these
// notifications into metrics, traces or logs; components work without one.
type Observer interface {
	// ObserveOperation is called after the operation completes.
	ObserveOperation(ctx OperationContext)
}

// OperationContext describes a single completed operation.
type OperationContext struct {
	// Component is the package that performed the operation.
	// Examples: "eventbus", "idempotency"
	Component string

	// Operation names what was done.
	// Examples: "produce", "produce_batch", "commit", "heartbeat", "dead_letter", "handle", "create_topics"
	Operation string

	// Resource is the primary resource, usually a topic name or a store backend.
	Resource string

	// SubResource narrows the resource, for example a partition number ("2").
	SubResource string

	// Duration is how long the operation took.
	Duration time.Duration

	// Error is nil for successful operations.
	Error error

	// Size is the number of bytes or records involved, when meaningful.
	Size int64

	// Metadata carries operation-specific details such as the consumer group,
	// the offset or the processing outcome.
	Metadata map[string]interface{}
}

// Outcome returns the "outcome" metadata entry, or an empty string.
func (c OperationContext) Outcome() string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata["outcome"].(string); ok {
		return v
	}
	return ""
}
