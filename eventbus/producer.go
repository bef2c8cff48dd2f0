package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/observability"
	"github.com/aalemi-dev/carbon-eventbus/tracer"
	"github.com/segmentio/kafka-go"
)

// Producer publishes events on the shared publisher. Every message is keyed
// by Event.PartitionKey, so a tenant's events stay in order on one partition.
type Producer struct {
	instrumentation

	writer MessageWriter
	tracer tracer.Tracer
}

// NewProducer returns a producer on cm's shared publisher.
func NewProducer(cm *ConnectionManager) *Producer {
	return &Producer{
		instrumentation: cm.instrumentation,
		writer:          cm.Publisher(),
	}
}

// WithObserver reports every publish to observer.
func (p *Producer) WithObserver(observer observability.Observer) *Producer {
	p.observer = observer
	return p
}

// WithLogger attaches a logger.
func (p *Producer) WithLogger(logger Logger) *Producer {
	p.logger = logger
	return p
}

// WithTracer makes every publish a producer span whose context travels in
// the message headers.
func (p *Producer) WithTracer(t tracer.Tracer) *Producer {
	p.tracer = t
	return p
}

// Publish sends one event to topic and waits for the broker's
// acknowledgment.
//
// Parameters:
//   - ctx: bounds the write; carries the trace to continue
//   - topic: destination topic, usually one of the Topic* constants
//   - event: the envelope; its PartitionKey becomes the message key
//
// Returns:
//   - error: the encoding error, or the broker error unmodified
//
// The outcome is reported to the observer as a "produce" operation.
//
// Example:
//
//	ev, _ := eventbus.NewEvent("compliance.report_filed", "compliance-service", payload,
//	    eventbus.WithCompanyID(companyID))
//	if err := producer.Publish(ctx, eventbus.TopicCompliance, ev); err != nil {
//	    if eventbus.IsRetryableError(err) {
//	        return retryLater(ev)
//	    }
//	    return err
//	}
func (p *Producer) Publish(ctx context.Context, topic string, event Event) error {
	ctx, finish := p.startSpan(ctx, topic, "publish", 1)

	start := time.Now()
	msg, err := p.encode(ctx, topic, event)
	if err == nil {
		err = p.writer.WriteMessages(ctx, msg)
	}
	finish(err)

	p.observeOperation("produce", topic, "", time.Since(start), err, int64(len(msg.Value)), map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	})
	if err != nil {
		p.logError(ctx, "Failed to publish event", err, map[string]interface{}{
			"topic":    topic,
			"event_id": event.ID,
		})
		return err
	}

	p.logDebug(ctx, "Event published", map[string]interface{}{
		"topic":      topic,
		"event_id":   event.ID,
		"event_type": event.Type,
	})
	return nil
}

// PublishBatch sends events to topic in a single request, preserving their
// order. The request succeeds or fails as a whole. An empty batch is a no-op.
func (p *Producer) PublishBatch(ctx context.Context, topic string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, finish := p.startSpan(ctx, topic, "publish_batch", len(events))

	start := time.Now()
	msgs := make([]kafka.Message, 0, len(events))
	var (
		size int64
		err  error
	)
	for _, ev := range events {
		var msg kafka.Message
		msg, err = p.encode(ctx, topic, ev)
		if err != nil {
			break
		}
		size += int64(len(msg.Value))
		msgs = append(msgs, msg)
	}
	if err == nil {
		err = p.writer.WriteMessages(ctx, msgs...)
	}
	finish(err)

	p.observeOperation("produce_batch", topic, "", time.Since(start), err, size, map[string]interface{}{
		"count": len(events),
	})
	if err != nil {
		p.logError(ctx, "Failed to publish event batch", err, map[string]interface{}{
			"topic": topic,
			"count": len(events),
		})
		return err
	}

	p.logDebug(ctx, "Event batch published", map[string]interface{}{
		"topic": topic,
		"count": len(events),
	})
	return nil
}

// publishRaw sends an unkeyed JSON document to topic.
func (p *Producer) publishRaw(ctx context.Context, topic string, value interface{}) (int, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("failed to encode message for %s: %w", topic, err)
	}
	msg := kafka.Message{Topic: topic, Value: body, Headers: p.traceHeaders(ctx)}
	return len(body), p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) encode(ctx context.Context, topic string, event Event) (kafka.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(event.PartitionKey()),
		Value:   body,
		Headers: p.traceHeaders(ctx),
	}, nil
}

func (p *Producer) traceHeaders(ctx context.Context) []kafka.Header {
	if p.tracer == nil {
		return nil
	}
	return headersFromCarrier(p.tracer.GetCarrier(ctx))
}

func (p *Producer) startSpan(ctx context.Context, topic, op string, count int) (context.Context, func(error)) {
	if p.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := p.tracer.StartSpan(ctx, topic+" "+op, tracer.AsProducer(), tracer.WithAttributes(map[string]interface{}{
		"messaging.system":              "kafka",
		"messaging.destination.name":    topic,
		"messaging.batch.message_count": count,
	}))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
