package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	traceSpan "go.opentelemetry.io/otel/trace"
)

// SpanOption customises a span started with StartSpan.
type SpanOption func(*spanSettings)

type spanSettings struct {
	kind  traceSpan.SpanKind
	attrs map[string]interface{}
}

// AsProducer marks the span as a message publish.
func AsProducer() SpanOption {
	return func(s *spanSettings) { s.kind = traceSpan.SpanKindProducer }
}

// AsConsumer marks the span as the processing of a received message.
func AsConsumer() SpanOption {
	return func(s *spanSettings) { s.kind = traceSpan.SpanKindConsumer }
}

// WithAttributes sets attributes at span start.
func WithAttributes(attrs map[string]interface{}) SpanOption {
	return func(s *spanSettings) { s.attrs = attrs }
}

// spanImpl adapts an OpenTelemetry span to Span.
type spanImpl struct {
	span traceSpan.Span
}

func (s *spanImpl) End() {
	s.span.End()
}

func (s *spanImpl) SetAttributes(attrs map[string]interface{}) {
	if len(attrs) == 0 {
		return
	}
	s.span.SetAttributes(toAttributes(attrs)...)
}

func (s *spanImpl) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func toAttributes(attrs map[string]interface{}) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return out
}

// StartSpan starts a span named name as a child of any span in ctx.
//
//	ctx, span := tr.StartSpan(ctx, "credit.events process", tracer.AsConsumer(),
//	    tracer.WithAttributes(map[string]interface{}{"messaging.kafka.partition": 2}))
//	defer span.End()
func (t *TracerClient) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	settings := spanSettings{kind: traceSpan.SpanKindInternal}
	for _, opt := range opts {
		opt(&settings)
	}

	startOpts := []traceSpan.SpanStartOption{traceSpan.WithSpanKind(settings.kind)}
	if len(settings.attrs) > 0 {
		startOpts = append(startOpts, traceSpan.WithAttributes(toAttributes(settings.attrs)...))
	}

	ctx, otSpan := t.tracer.Tracer(instrumentationName).Start(ctx, name, startOpts...)
	return ctx, &spanImpl{span: otSpan}
}

// GetCarrier returns traceparent (and tracestate/baggage when present) for ctx.
// The map is empty when ctx carries no valid span.
func (t *TracerClient) GetCarrier(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	t.propagator.Inject(ctx, carrier)
	return carrier
}

// SetCarrierOnContext returns ctx extended with the remote span context found
// in carrier, so spans started from it join the publisher's trace.
func (t *TracerClient) SetCarrierOnContext(ctx context.Context, carrier map[string]string) context.Context {
	return t.propagator.Extract(ctx, propagation.MapCarrier(carrier))
}
