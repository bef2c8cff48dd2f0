package eventbus

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/idempotency"
	"github.com/aalemi-dev/carbon-eventbus/observability"
	"github.com/aalemi-dev/carbon-eventbus/tracer"
	"github.com/segmentio/kafka-go"
)

// ConsumeOption customizes one subscription.
type ConsumeOption func(*consumeOptions)

type consumeOptions struct {
	maxRetries int
	backoff    time.Duration
	ttl        time.Duration
}

// WithMaxRetries sets the number of retries after the first handler
// attempt. Zero means a single attempt.
func WithMaxRetries(n int) ConsumeOption {
	return func(o *consumeOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the first pause between attempts.
func WithRetryBackoff(d time.Duration) ConsumeOption {
	return func(o *consumeOptions) {
		if d > 0 {
			o.backoff = d
		}
	}
}

// WithIdempotencyTTL sets how long processed markers are kept.
func WithIdempotencyTTL(d time.Duration) ConsumeOption {
	return func(o *consumeOptions) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// ConsumerRuntime runs consumer-group subscriptions with idempotent,
// retrying, explicitly committed processing. Every consumer handle it
// creates is owned by a bounded registry and closed on Shutdown.
type ConsumerRuntime struct {
	instrumentation

	cfg         Config
	newConsumer func(groupID string) GroupConsumer
	store       idempotency.Store
	dlq         deadLetterSink
	tracer      tracer.Tracer
	handles     *handleRegistry
	sleep       func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

// NewConsumerRuntime returns a runtime that opens consumer handles on cm,
// deduplicates through store and routes failures through dlq.
func NewConsumerRuntime(cm *ConnectionManager, store idempotency.Store, dlq *DeadLetterRouter) *ConsumerRuntime {
	return &ConsumerRuntime{
		instrumentation: cm.instrumentation,
		cfg:             cm.cfg,
		newConsumer: func(groupID string) GroupConsumer {
			return cm.NewConsumerHandle(groupID)
		},
		store:   store,
		dlq:     dlq,
		handles: newHandleRegistry(cm.cfg.MaxConsumers),
		sleep:   sleepContext,
	}
}

// WithObserver reports every handled message, commit and heartbeat.
func (r *ConsumerRuntime) WithObserver(observer observability.Observer) *ConsumerRuntime {
	r.observer = observer
	return r
}

// WithLogger attaches a logger.
func (r *ConsumerRuntime) WithLogger(logger Logger) *ConsumerRuntime {
	r.logger = logger
	return r
}

// WithTracer continues the producer's trace for every message and wraps
// its processing in a consumer span.
func (r *ConsumerRuntime) WithTracer(t tracer.Tracer) *ConsumerRuntime {
	r.tracer = t
	return r
}

// Subscription is a running Consume call.
type Subscription struct {
	groupID string
	topics  []string
	cancel  context.CancelFunc
	done    chan struct{}
	release func() error
}

// GroupID returns the subscription's consumer group.
func (s *Subscription) GroupID() string { return s.groupID }

// Topics returns the subscribed topics.
func (s *Subscription) Topics() []string { return append([]string(nil), s.topics...) }

// Done is closed once the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops the subscription, leaves the group and waits for in-flight
// partitions to finish. A message in the middle of a retry is abandoned
// uncommitted.
func (s *Subscription) Close() error {
	s.cancel()
	err := s.release()
	<-s.done
	return err
}

// Consume joins groupID, subscribes to topics and processes their messages
// with handler in the background until ctx ends, the subscription is
// closed or the runtime shuts down. Partitions without a committed offset
// start at the newest message.
//
// Each assigned partition gets its own goroutine, which processes its
// messages one at a time in offset order.
//
// Parameters:
//   - ctx: cancelling it stops the subscription
//   - groupID: the consumer group; members of one group share partitions
//   - topics: topics to subscribe to, at least one
//   - handler: called for every new event; a returned error is retried
//   - opts: per-subscription overrides of the retry and idempotency settings
//
// Returns:
//   - *Subscription: handle to stop the subscription and wait for it
//   - error: invalid arguments, ErrTooManyConsumers, ErrRuntimeClosed or
//     the group join failure
//
// Example:
//
//	sub, err := runtime.Consume(ctx, "ledger", []string{eventbus.TopicCredit},
//	    func(ctx context.Context, ev eventbus.Event) error {
//	        return ledger.Apply(ctx, ev)
//	    },
//	    eventbus.WithMaxRetries(5),
//	)
func (r *ConsumerRuntime) Consume(ctx context.Context, groupID string, topics []string, handler Handler, opts ...ConsumeOption) (*Subscription, error) {
	if groupID == "" {
		return nil, errors.New("consumer group id is required")
	}
	if len(topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	o := consumeOptions{
		maxRetries: *r.cfg.MaxRetries,
		backoff:    r.cfg.RetryBackoff,
		ttl:        r.cfg.IdempotencyTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}

	// Added before acquire: Shutdown may already be waiting.
	r.wg.Add(1)
	consumer := r.newConsumer(groupID)
	release, err := r.handles.acquire(consumer)
	if err != nil {
		r.wg.Done()
		return nil, err
	}
	if err := consumer.Subscribe(ctx, topics); err != nil {
		_ = release()
		r.wg.Done()
		r.logError(ctx, "Failed to subscribe consumer group", err, map[string]interface{}{
			"group":  groupID,
			"topics": topics,
		})
		return nil, err
	}

	proc := &processor{
		instrumentation: r.instrumentation,
		groupID:         groupID,
		handler:         handler,
		store:           r.store,
		dlq:             r.dlq,
		tracer:          r.tracer,
		maxRetries:      o.maxRetries,
		backoff:         o.backoff,
		ttl:             o.ttl,
		keyPrefix:       r.cfg.IdempotencyKeyPrefix,
		sleep:           r.sleep,
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)
	sub := &Subscription{
		groupID: groupID,
		topics:  append([]string(nil), topics...),
		cancel:  cancel,
		done:    make(chan struct{}),
		release: release,
	}

	go func() {
		defer r.wg.Done()
		defer close(sub.done)
		defer stop()
		defer cancel()
		defer func() { _ = release() }()
		r.run(runCtx, consumer, proc)
	}()

	r.logInfo(ctx, "Consumer subscribed", map[string]interface{}{
		"group":       groupID,
		"topics":      topics,
		"max_retries": o.maxRetries,
	})
	return sub, nil
}

// run drives generations until the consumer is closed or ctx ends, then
// stops its partitions and waits for them.
func (r *ConsumerRuntime) run(ctx context.Context, consumer GroupConsumer, proc *processor) {
	var partitions sync.WaitGroup
	defer partitions.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		sess, err := consumer.Next(ctx)
		if err != nil {
			if errors.Is(err, kafka.ErrGroupClosed) || ctx.Err() != nil {
				return
			}
			r.logWarn(ctx, "Consumer group error, rejoining", err, map[string]interface{}{"group": proc.groupID})
			if r.sleep(ctx, proc.backoff) != nil {
				return
			}
			continue
		}

		for topic, assignments := range sess.Assignments() {
			for _, a := range assignments {
				partitions.Add(1)
				sess.Start(func(genCtx context.Context) {
					defer partitions.Done()
					partCtx, cancel := context.WithCancel(genCtx)
					defer cancel()
					stop := context.AfterFunc(ctx, cancel)
					defer stop()

					r.runPartition(partCtx, consumer, sess, proc, topic, a.ID, a.Offset)
				})
			}
		}
	}
}

// runPartition reads one partition and processes its messages strictly in
// order until the generation ends.
func (r *ConsumerRuntime) runPartition(ctx context.Context, consumer GroupConsumer, sess Session, proc *processor, topic string, partition int, offset int64) {
	fields := map[string]interface{}{
		"group":     proc.groupID,
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
	}

	reader, err := consumer.OpenPartition(topic, partition, offset)
	if err != nil {
		r.logError(ctx, "Failed to open partition reader", err, fields)
		return
	}
	defer func() {
		if err := reader.Close(); err != nil {
			r.logWarn(ctx, "Failed to close partition reader", err, fields)
		}
	}()

	r.logDebug(ctx, "Partition assigned", fields)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				r.logDebug(ctx, "Partition released", fields)
				return
			}
			r.logWarn(ctx, "Failed to fetch message", err, fields)
			if r.sleep(ctx, proc.backoff) != nil {
				return
			}
			continue
		}

		if proc.process(ctx, sess, msg) == OutcomeAbandoned {
			return
		}
	}
}

// Active reports the number of open consumer handles.
func (r *ConsumerRuntime) Active() int {
	return r.handles.len()
}

// Shutdown closes every consumer handle, each independently, and waits for
// the subscriptions to stop or ctx to end. Close failures are logged and
// never abort the remaining handles. Consume fails after Shutdown.
func (r *ConsumerRuntime) Shutdown(ctx context.Context) {
	r.logInfo(ctx, "Closing consumer handles", map[string]interface{}{"count": r.handles.len()})

	_ = r.handles.closeAll(func(err error) {
		r.logWarn(ctx, "Failed to disconnect consumer gracefully", err, nil)
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.logWarn(ctx, "Consumers still running after shutdown deadline", ctx.Err(), nil)
	}
}
