package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/logger"
	"github.com/aalemi-dev/carbon-eventbus/observability"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ==================== Publisher ====================

type fakeWriter struct {
	mu       sync.Mutex
	calls    [][]kafka.Message
	err      error
	closeErr error
	closed   int
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, append([]kafka.Message(nil), msgs...))
	return w.err
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return w.closeErr
}

func (w *fakeWriter) sent() [][]kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]kafka.Message(nil), w.calls...)
}

// ==================== Admin ====================

type fakeAdmin struct {
	mu sync.Mutex

	// topics maps existing topic names to their partition count.
	topics map[string]int

	metadataErr   error
	metadataFails int // fail this many metadata calls, then succeed
	noLeaders     bool
	createErr     error
	createErrs    map[string]error
	heartbeatErr  error
	createCalls   []*kafka.CreateTopicsRequest
	metadataCalls []*kafka.MetadataRequest
	heartbeats    []*kafka.HeartbeatRequest
}

func newFakeAdmin(existing ...string) *fakeAdmin {
	a := &fakeAdmin{topics: map[string]int{}, createErrs: map[string]error{}}
	for _, name := range existing {
		a.topics[name] = 1
	}
	return a
}

func (a *fakeAdmin) Metadata(ctx context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metadataCalls = append(a.metadataCalls, req)
	if a.metadataFails > 0 {
		a.metadataFails--
		return nil, errors.New("dial tcp 127.0.0.1:9092: connect: connection refused")
	}
	if a.metadataErr != nil {
		return nil, a.metadataErr
	}

	resp := &kafka.MetadataResponse{}
	names := req.Topics
	if names == nil {
		for name := range a.topics {
			names = append(names, name)
		}
	}
	for _, name := range names {
		n, ok := a.topics[name]
		if !ok {
			resp.Topics = append(resp.Topics, kafka.Topic{Name: name, Error: kafka.UnknownTopicOrPartition})
			continue
		}
		topic := kafka.Topic{Name: name}
		for i := 0; i < n; i++ {
			p := kafka.Partition{Topic: name, ID: i}
			if !a.noLeaders {
				p.Leader = kafka.Broker{Host: "localhost", Port: 9092, ID: 1}
			}
			topic.Partitions = append(topic.Partitions, p)
		}
		resp.Topics = append(resp.Topics, topic)
	}
	return resp, nil
}

func (a *fakeAdmin) CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.createCalls = append(a.createCalls, req)
	if a.createErr != nil {
		return nil, a.createErr
	}
	resp := &kafka.CreateTopicsResponse{Errors: map[string]error{}}
	for _, t := range req.Topics {
		if err := a.createErrs[t.Topic]; err != nil {
			if errors.Is(err, kafka.TopicAlreadyExists) {
				a.topics[t.Topic] = t.NumPartitions
			}
			resp.Errors[t.Topic] = err
			continue
		}
		a.topics[t.Topic] = t.NumPartitions
		resp.Errors[t.Topic] = nil
	}
	return resp, nil
}

func (a *fakeAdmin) Heartbeat(ctx context.Context, req *kafka.HeartbeatRequest) (*kafka.HeartbeatResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.heartbeats = append(a.heartbeats, req)
	if a.heartbeatErr != nil {
		return nil, a.heartbeatErr
	}
	return &kafka.HeartbeatResponse{}, nil
}

func (a *fakeAdmin) creates() []*kafka.CreateTopicsRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*kafka.CreateTopicsRequest(nil), a.createCalls...)
}

// ==================== Consumer group ====================

type fakeSession struct {
	mu           sync.Mutex
	assignments  map[string][]kafka.PartitionAssignment
	commits      []map[string]map[int]int64
	heartbeats   int
	commitErr    error
	heartbeatErr error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newFakeSession(assignments map[string][]kafka.PartitionAssignment) *fakeSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeSession{assignments: assignments, ctx: ctx, cancel: cancel}
}

func (s *fakeSession) Assignments() map[string][]kafka.PartitionAssignment {
	return s.assignments
}

func (s *fakeSession) Start(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *fakeSession) CommitOffsets(offsets map[string]map[int]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, offsets)
	return s.commitErr
}

func (s *fakeSession) Heartbeat(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return s.heartbeatErr
}

// end finishes the generation and waits for its goroutines.
func (s *fakeSession) end() {
	s.cancel()
	s.wg.Wait()
}

func (s *fakeSession) committed() []map[string]map[int]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]map[int]int64(nil), s.commits...)
}

func (s *fakeSession) heartbeatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats
}

type fakeReader struct {
	msgs   chan kafka.Message
	mu     sync.Mutex
	closed bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs)+16)}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m, ok := <-r.msgs:
		if !ok {
			return kafka.Message{}, io.EOF
		}
		return m, nil
	}
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeConsumer struct {
	groupID string

	mu           sync.Mutex
	topics       []string
	subscribeErr error
	closeErr     error
	closes       int
	readers      map[string]*fakeReader
	sessions     chan Session
	done         chan struct{}
	closeOnce    sync.Once
}

func newFakeConsumer(groupID string) *fakeConsumer {
	return &fakeConsumer{
		groupID:  groupID,
		readers:  map[string]*fakeReader{},
		sessions: make(chan Session, 4),
		done:     make(chan struct{}),
	}
}

func (c *fakeConsumer) Subscribe(ctx context.Context, topics []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = topics
	return c.subscribeErr
}

func (c *fakeConsumer) Next(ctx context.Context) (Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, kafka.ErrGroupClosed
	case s := <-c.sessions:
		return s, nil
	}
}

func (c *fakeConsumer) OpenPartition(topic string, partition int, offset int64) (PartitionReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.readers[fmt.Sprintf("%s/%d", topic, partition)]
	if !ok {
		return nil, fmt.Errorf("no reader for %s/%d", topic, partition)
	}
	return r, nil
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	return c.closeErr
}

func (c *fakeConsumer) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConsumer) addReader(topic string, partition int, r *fakeReader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readers[fmt.Sprintf("%s/%d", topic, partition)] = r
}

// ==================== Idempotency ====================

type fakeStore struct {
	mu     sync.Mutex
	values map[string]bool
	ttls   map[string]time.Duration
	getErr error
	setErr error
	gets   int
	sets   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]bool{}, ttls: map[string]time.Duration{}}
}

func (s *fakeStore) Get(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return false, s.getErr
	}
	return s.values[key], nil
}

func (s *fakeStore) Set(ctx context.Context, key string, value bool, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	s.ttls[key] = ttl
	return nil
}

// ==================== Dead letter ====================

type routedMessage struct {
	topic   string
	message interface{}
	cause   error
	env     DeadLetterMessage
}

type fakeDLQ struct {
	mu     sync.Mutex
	routed []routedMessage
}

func (d *fakeDLQ) RouteToDLQ(ctx context.Context, originalTopic string, message interface{}, cause error, opts ...DeadLetterOption) {
	var env DeadLetterMessage
	for _, opt := range opts {
		opt(&env)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routed = append(d.routed, routedMessage{topic: originalTopic, message: message, cause: cause, env: env})
}

func (d *fakeDLQ) messages() []routedMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]routedMessage(nil), d.routed...)
}

// ==================== Observability ====================

type recordingObserver struct {
	mu  sync.Mutex
	ops []observability.OperationContext
}

func (r *recordingObserver) ObserveOperation(op observability.OperationContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingObserver) byOperation(name string) []observability.OperationContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []observability.OperationContext
	for _, op := range r.ops {
		if op.Operation == name {
			out = append(out, op)
		}
	}
	return out
}

// newObservedLogger returns a logger whose entries are captured in logs.
func newObservedLogger() (*logger.LoggerClient, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.NewFromZap(zap.New(core), false), logs
}

// ==================== Helpers ====================

func newTestConnectionManager(t *testing.T, w *fakeWriter, a *fakeAdmin) *ConnectionManager {
	t.Helper()
	cm, err := NewConnectionManager(Config{
		Brokers:           []string{"localhost:9092"},
		LeaderWaitTimeout: time.Second,
		Retry:             RetryConfig{InitialRetryTime: time.Millisecond, Retries: 3},
	})
	require.NoError(t, err)
	cm.writer = w
	cm.admin = a
	return cm
}

func eventMessage(t *testing.T, topic string, partition int, offset int64, ev Event) kafka.Message {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Partition: partition, Offset: offset, Value: body}
}

func testEvent(id string) Event {
	return Event{
		ID:            id,
		Type:          "credit.purchased",
		Source:        "marketplace-service",
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CorrelationID: "corr-" + id,
		Data:          []byte(`{"creditId":"c-1","amount":10}`),
		Version:       EventVersion,
	}
}
