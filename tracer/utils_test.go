package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func newTestClient(t *testing.T) *TracerClient {
	t.Helper()
	client, err := NewClient(Config{ServiceName: "test", AppEnv: "test"})
	require.NoError(t, err)
	return client
}

func TestStartSpan_ChildInheritsParent(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)

	parentCtx, parent := client.StartSpan(context.Background(), "publish")
	defer parent.End()
	childCtx, child := client.StartSpan(parentCtx, "write")
	defer child.End()

	assert.True(t, trace.SpanFromContext(childCtx).IsRecording())
	assert.Equal(t,
		trace.SpanFromContext(parentCtx).SpanContext().TraceID(),
		trace.SpanFromContext(childCtx).SpanContext().TraceID())
}

func TestStartSpan_Kind(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)

	_, producer := client.StartSpan(context.Background(), "publish", AsProducer())
	defer producer.End()
	_, consumer := client.StartSpan(context.Background(), "process", AsConsumer(),
		WithAttributes(map[string]interface{}{"messaging.kafka.partition": 1}))
	defer consumer.End()

	ro, ok := producer.(*spanImpl).span.(sdktrace.ReadOnlySpan)
	require.True(t, ok)
	assert.Equal(t, trace.SpanKindProducer, ro.SpanKind())

	ro, ok = consumer.(*spanImpl).span.(sdktrace.ReadOnlySpan)
	require.True(t, ok)
	assert.Equal(t, trace.SpanKindConsumer, ro.SpanKind())
	assert.Len(t, ro.Attributes(), 1)
}

func TestSetAttributes_AllTypes(t *testing.T) {
	t.Parallel()

	attrs := toAttributes(map[string]interface{}{
		"str":     "credit.events",
		"int":     2,
		"int64":   int64(42),
		"float64": 0.5,
		"bool":    true,
		"other":   []string{"a", "b"},
	})
	assert.Len(t, attrs, 6)

	client := newTestClient(t)
	_, span := client.StartSpan(context.Background(), "attrs")
	defer span.End()
	assert.NotPanics(t, func() {
		span.SetAttributes(nil)
		span.SetAttributes(map[string]interface{}{"k": "v"})
	})
}

func TestRecordError(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	_, span := client.StartSpan(context.Background(), "handle")
	defer span.End()

	assert.NotPanics(t, func() {
		span.RecordError(nil)
		span.RecordError(errors.New("handler failed"))
	})
}

func TestGetCarrier(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)

	assert.Empty(t, client.GetCarrier(context.Background()))

	ctx, span := client.StartSpan(context.Background(), "publish")
	defer span.End()
	assert.Contains(t, client.GetCarrier(ctx), "traceparent")
}

func TestCarrier_RoundTrip(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)

	ctx, span := client.StartSpan(context.Background(), "publish")
	defer span.End()

	restored := client.SetCarrierOnContext(context.Background(), client.GetCarrier(ctx))

	original := trace.SpanFromContext(ctx).SpanContext()
	remote := trace.SpanContextFromContext(restored)
	assert.Equal(t, original.TraceID(), remote.TraceID())
	assert.True(t, remote.IsRemote())
}

func TestSetCarrierOnContext_EmptyCarrier(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)

	ctx := client.SetCarrierOnContext(context.Background(), map[string]string{})
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}
