package eventbus

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/idempotency"
	"github.com/aalemi-dev/carbon-eventbus/tracer"
	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
)

// deadLetterSink is the part of DeadLetterRouter the processor needs.
type deadLetterSink interface {
	RouteToDLQ(ctx context.Context, originalTopic string, message interface{}, cause error, opts ...DeadLetterOption)
}

// processor runs the per-message state machine for one subscription:
// parse, deduplicate, attempt with backoff, dead-letter, commit.
type processor struct {
	instrumentation

	groupID    string
	handler    Handler
	store      idempotency.Store
	dlq        deadLetterSink
	tracer     tracer.Tracer
	maxRetries int
	backoff    time.Duration
	ttl        time.Duration
	keyPrefix  string
	sleep      func(ctx context.Context, d time.Duration) error
}

// process handles msg and commits msg.Offset+1 exactly once, unless the
// context ends during a backoff sleep, in which case the message is left
// uncommitted for redelivery. It returns the outcome.
func (p *processor) process(ctx context.Context, sess Session, msg kafka.Message) string {
	start := time.Now()
	partition := strconv.Itoa(msg.Partition)

	if p.tracer != nil {
		if carrier := carrierFromHeaders(msg.Headers); carrier != nil {
			ctx = p.tracer.SetCarrierOnContext(ctx, carrier)
		}
		var span tracer.Span
		ctx, span = p.tracer.StartSpan(ctx, msg.Topic+" process", tracer.AsConsumer(), tracer.WithAttributes(map[string]interface{}{
			"messaging.system":                   "kafka",
			"messaging.destination.name":         msg.Topic,
			"messaging.consumer.group.name":      p.groupID,
			"messaging.kafka.offset":             msg.Offset,
			"messaging.destination.partition.id": partition,
		}))
		defer span.End()
	}

	outcome, attempts, err := p.run(ctx, sess, msg)

	p.observeOperation("handle", msg.Topic, partition, time.Since(start), err, int64(len(msg.Value)), map[string]interface{}{
		"outcome":  outcome,
		"group":    p.groupID,
		"offset":   msg.Offset,
		"attempts": attempts,
	})
	return outcome
}

func (p *processor) run(ctx context.Context, sess Session, msg kafka.Message) (string, int, error) {
	fields := map[string]interface{}{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"group":     p.groupID,
	}

	event, err := parseEvent(msg.Value)
	if err != nil {
		p.logError(ctx, "Failed to parse message from topic "+msg.Topic, err, fields)
		raw := string(msg.Value)
		if raw == "" {
			raw = "empty"
		}
		p.dlq.RouteToDLQ(ctx, msg.Topic, raw, err, WithSource(p.groupID, msg.Partition, msg.Offset))
		p.commit(ctx, sess, msg)
		return OutcomeParseFailed, 0, err
	}
	fields["event_id"] = event.ID

	key := p.keyPrefix + event.ID
	done, err := p.store.Get(ctx, key)
	if err != nil {
		p.logWarn(ctx, "Idempotency lookup failed, processing event", err, fields)
	}
	if done {
		p.logDebug(ctx, fmt.Sprintf("Event %s already processed. Skipping.", event.ID), fields)
		p.commit(ctx, sess, msg)
		return OutcomeDuplicate, 0, nil
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.backoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
	}
	b.Reset()

	var (
		lastErr    error
		panicStack string
		total      = p.maxRetries + 1
	)
	for attempt := 1; attempt <= total; attempt++ {
		panicStack, lastErr = p.invoke(ctx, event)
		if lastErr == nil {
			// Marker errors are logged, not retried: the handler already ran.
			if err := p.store.Set(context.WithoutCancel(ctx), key, true, p.ttl); err != nil {
				p.logWarn(ctx, "Failed to mark event as processed", err, fields)
			}
			p.commit(ctx, sess, msg)
			return OutcomeProcessed, attempt, nil
		}

		p.logWarn(ctx, fmt.Sprintf("Failed to process event %s. Attempt %d of %d", event.ID, attempt, total), lastErr, fields)
		if attempt == total {
			break
		}

		if err := p.sleep(ctx, b.NextBackOff()); err != nil {
			p.logWarn(ctx, "Retry interrupted, leaving event uncommitted", err, fields)
			return OutcomeAbandoned, attempt, err
		}
		p.heartbeat(ctx, sess, msg)
	}

	herr := newHandlerError(lastErr, total, panicStack)
	p.logError(ctx, fmt.Sprintf("Exceeded max retries for event %s. Routing to DLQ.", event.ID), herr, fields)
	p.dlq.RouteToDLQ(ctx, msg.Topic, event, herr,
		WithSource(p.groupID, msg.Partition, msg.Offset),
		WithAttempts(total),
	)
	p.commit(ctx, sess, msg)
	return OutcomeDeadLettered, total, herr
}

// invoke calls the handler, turning a panic into an error.
func (p *processor) invoke(ctx context.Context, event Event) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = string(debug.Stack())
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return "", p.handler(ctx, event)
}

// commit records msg as consumed. Failures are logged; the message will be
// redelivered and skipped by the idempotency check.
func (p *processor) commit(ctx context.Context, sess Session, msg kafka.Message) {
	start := time.Now()
	next := msg.Offset + 1
	err := sess.CommitOffsets(map[string]map[int]int64{
		msg.Topic: {msg.Partition: next},
	})
	p.observeOperation("commit", msg.Topic, strconv.Itoa(msg.Partition), time.Since(start), err, 0, map[string]interface{}{
		"group":  p.groupID,
		"offset": next,
	})
	if err != nil {
		p.logError(ctx, "Failed to commit offset", &BrokerError{Op: "commit", Err: err}, map[string]interface{}{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    next,
			"group":     p.groupID,
		})
	}
}

func (p *processor) heartbeat(ctx context.Context, sess Session, msg kafka.Message) {
	start := time.Now()
	err := sess.Heartbeat(ctx)
	p.observeOperation("heartbeat", msg.Topic, strconv.Itoa(msg.Partition), time.Since(start), err, 0, map[string]interface{}{
		"group": p.groupID,
	})
	if err != nil {
		p.logWarn(ctx, "Heartbeat failed", err, map[string]interface{}{"group": p.groupID})
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
