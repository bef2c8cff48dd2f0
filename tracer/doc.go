// Package tracer wraps OpenTelemetry for the event bus.
//
// Producers start a producer span per publish and copy the span's W3C trace
// context into the Kafka message headers; the consumer runtime extracts those
// headers and starts a consumer span around every handler invocation, so one
// trace follows an event from publisher to handler and, on failure, to the
// dead-letter queue.
//
//	tr, _ := tracer.NewClient(tracer.Config{ServiceName: "carbon-eventbus"})
//
//	ctx, span := tr.StartSpan(ctx, "credit.events publish", tracer.AsProducer())
//	headers := tr.GetCarrier(ctx) // {"traceparent": "00-..."}
//	span.End()
//
//	// receiving side
//	ctx = tr.SetCarrierOnContext(context.Background(), headers)
//	ctx, span = tr.StartSpan(ctx, "credit.events process", tracer.AsConsumer())
//	defer span.End()
//
// Export is optional. With EnableExport false spans are still created and
// propagated but never leave the process.
package tracer
