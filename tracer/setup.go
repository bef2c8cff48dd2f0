package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// instrumentationName names the tracer that event-bus spans are created with.
const instrumentationName = "github.com/aalemi-dev/carbon-eventbus"

// TracerClient implements Tracer on top of an OpenTelemetry SDK
// TracerProvider. The event bus uses it to open a producer span around every
// publish, inject the W3C traceparent header into the outgoing message and
// continue that trace in a consumer span when the message is processed.
//
// TracerClient is safe for concurrent use and is shared by the producer, the
// dead-letter router and every consumer subscription.
type TracerClient struct {
	tracer     *trace.TracerProvider
	propagator propagation.TextMapPropagator
}

// NewClient creates a TracerClient, installs its provider as the global
// OpenTelemetry TracerProvider and sets the W3C trace-context and baggage
// propagators.
//
// Parameters:
//   - cfg: service name, deployment environment and export settings
//
// Returns:
//   - *TracerClient: a client ready to create spans and carry trace context
//   - error: the OTLP exporter could not be initialized
//
// When cfg.EnableExport is set, spans are batched to an OTLP/HTTP collector
// at cfg.Endpoint (the exporter default when empty). Without export, spans
// are still created and propagated so that trace ids flow through message
// headers and log entries.
//
// Every span carries these resource attributes:
//   - service.name from cfg.ServiceName
//   - deployment.environment from cfg.AppEnv
//   - environment from cfg.AppEnv
//
// Example:
//
//	tr, err := tracer.NewClient(tracer.Config{
//	    ServiceName:  "carbon-eventbus",
//	    AppEnv:       "production",
//	    EnableExport: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer tr.Shutdown(context.Background())
//
//	ctx, span := tr.StartSpan(ctx, "credit.events publish", tracer.AsProducer())
//	defer span.End()
//	headers := tr.GetCarrier(ctx) // contains "traceparent"
func NewClient(cfg Config) (*TracerClient, error) {
	return newClientWithContext(context.Background(), cfg)
}

func newClientWithContext(ctx context.Context, cfg Config) (*TracerClient, error) {
	var options []trace.TracerProviderOption

	if cfg.EnableExport {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("failed to initialize OTLP exporter: %w", err)
		}

		var httpOpts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}

		exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(httpOpts...))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OTLP exporter: %w", err)
		}
		options = append(options, trace.WithBatcher(exporter))
	}

	options = append(options, trace.WithResource(resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.AppEnv),
		attribute.String("environment", cfg.AppEnv),
	)))

	tp := trace.NewTracerProvider(options...)
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)

	return &TracerClient{tracer: tp, propagator: propagator}, nil
}

// Shutdown flushes pending spans and stops the provider. Spans started
// after Shutdown are dropped.
//
// Parameters:
//   - ctx: bounds the flush of batched spans
//
// Returns:
//   - error: the exporter failed to flush before ctx ended
//
// A nil client is a no-op, so callers can defer Shutdown unconditionally.
func (t *TracerClient) Shutdown(ctx context.Context) error {
	if t == nil || t.tracer == nil {
		return nil
	}
	return t.tracer.Shutdown(ctx)
}
