package eventbus

import (
	"context"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/observability"
)

// timestampLayout is ISO-8601 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DeadLetterMessage is the envelope published to the dead-letter topic.
type DeadLetterMessage struct {
	OriginalTopic   string      `json:"originalTopic"`
	OriginalMessage interface{} `json:"originalMessage"`
	Error           string      `json:"error"`
	StackTrace      string      `json:"stackTrace,omitempty"`
	Timestamp       string      `json:"timestamp"`
	GroupID         string      `json:"groupId,omitempty"`
	Partition       *int        `json:"partition,omitempty"`
	Offset          *int64      `json:"offset,omitempty"`
	Attempts        int         `json:"attempts,omitempty"`
}

// DeadLetterOption adds consumer context to the envelope.
type DeadLetterOption func(*DeadLetterMessage)

// WithSource records where the failed message was read from.
func WithSource(groupID string, partition int, offset int64) DeadLetterOption {
	return func(m *DeadLetterMessage) {
		m.GroupID = groupID
		m.Partition = &partition
		m.Offset = &offset
	}
}

// WithAttempts records how many times the handler ran.
func WithAttempts(n int) DeadLetterOption {
	return func(m *DeadLetterMessage) { m.Attempts = n }
}

// DeadLetterRouter publishes failed messages to the dead-letter topic.
// Routing never fails from the caller's point of view.
type DeadLetterRouter struct {
	instrumentation

	producer *Producer
	topic    string
	now      func() time.Time
}

// NewDeadLetterRouter routes to topic through producer. An empty topic
// means DefaultDeadLetterTopic.
func NewDeadLetterRouter(producer *Producer, topic string) *DeadLetterRouter {
	if topic == "" {
		topic = DefaultDeadLetterTopic
	}
	return &DeadLetterRouter{
		instrumentation: producer.instrumentation,
		producer:        producer,
		topic:           topic,
		now:             time.Now,
	}
}

// WithObserver reports every routing attempt to observer.
func (d *DeadLetterRouter) WithObserver(observer observability.Observer) *DeadLetterRouter {
	d.observer = observer
	return d
}

// WithLogger attaches a logger.
func (d *DeadLetterRouter) WithLogger(logger Logger) *DeadLetterRouter {
	d.logger = logger
	return d
}

// Topic returns the dead-letter topic name.
func (d *DeadLetterRouter) Topic() string {
	return d.topic
}

// RouteToDLQ publishes message, the cause and its stack to the dead-letter
// topic. message is the parsed event or, when parsing failed, the raw text.
// A publish failure is logged and reported to the observer, then dropped.
func (d *DeadLetterRouter) RouteToDLQ(ctx context.Context, originalTopic string, message interface{}, cause error, opts ...DeadLetterOption) {
	env := DeadLetterMessage{
		OriginalTopic:   originalTopic,
		OriginalMessage: message,
		Timestamp:       d.now().UTC().Format(timestampLayout),
	}
	if cause != nil {
		env.Error = cause.Error()
		env.StackTrace = stackTraceOf(cause)
	}
	for _, opt := range opts {
		opt(&env)
	}

	start := time.Now()
	size, err := d.producer.publishRaw(ctx, d.topic, env)
	d.observeOperation("dead_letter", d.topic, "", time.Since(start), err, int64(size), map[string]interface{}{
		"originalTopic": originalTopic,
	})
	if err != nil {
		d.logError(ctx, "Failed to route message to DLQ", err, map[string]interface{}{
			"original_topic": originalTopic,
			"dlq_topic":      d.topic,
		})
		return
	}

	d.logWarn(ctx, "Message routed to DLQ from topic "+originalTopic, cause, map[string]interface{}{
		"original_topic": originalTopic,
		"dlq_topic":      d.topic,
	})
}

// stackTraceOf prefers a stack already attached to err.
func stackTraceOf(err error) string {
	if s, ok := err.(interface{ Stack() string }); ok && s.Stack() != "" {
		return s.Stack()
	}
	return stackOf(err)
}
