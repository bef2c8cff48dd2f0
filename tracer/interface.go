package tracer

import (
	"context"
)

// Tracer creates spans and moves trace context in and out of string carriers
// such as Kafka message headers.
//
// This interface is implemented by the concrete *TracerClient type.
type Tracer interface {
	// StartSpan starts a child of the span in ctx, or a root span.
	// The caller must End the returned span.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// GetCarrier returns the W3C trace context of ctx as headers.
	GetCarrier(ctx context.Context) map[string]string

	// SetCarrierOnContext continues the trace described by carrier.
	SetCarrierOnContext(ctx context.Context, carrier map[string]string) context.Context
}

// Span is a single traced operation.
type Span interface {
	End()

	// SetAttributes records key/value pairs. Strings, ints, int64, float64
	// and bools keep their type; anything else is formatted with fmt.Sprint.
	SetAttributes(attrs map[string]interface{})

	// RecordError records err and marks the span as failed.
	RecordError(err error)
}
