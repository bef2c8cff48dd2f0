package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func newTestRuntime(t *testing.T, consumers ...*fakeConsumer) (*ConsumerRuntime, *fakeDLQ) {
	t.Helper()
	cm := newTestConnectionManager(t, &fakeWriter{}, newFakeAdmin())
	r := NewConsumerRuntime(cm, newFakeStore(), nil)

	dlq := &fakeDLQ{}
	r.dlq = dlq
	r.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	byGroup := map[string]*fakeConsumer{}
	for _, c := range consumers {
		byGroup[c.groupID] = c
	}
	r.newConsumer = func(groupID string) GroupConsumer {
		c, ok := byGroup[groupID]
		require.True(t, ok, "unexpected group %s", groupID)
		return c
	}
	return r, dlq
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for subscription to stop")
	}
}

func TestConsumerRuntime_Validation(t *testing.T) {
	t.Parallel()

	r, _ := newTestRuntime(t)
	noop := func(context.Context, Event) error { return nil }

	_, err := r.Consume(context.Background(), "", []string{TopicCredit}, noop)
	assert.ErrorContains(t, err, "group id")

	_, err = r.Consume(context.Background(), "g", nil, noop)
	assert.ErrorContains(t, err, "topic")

	_, err = r.Consume(context.Background(), "g", []string{TopicCredit}, nil)
	assert.ErrorContains(t, err, "handler")

	assert.Zero(t, r.Active())
}

func TestConsumerRuntime_ProcessesPartitionInOrder(t *testing.T) {
	t.Parallel()

	c := newFakeConsumer("portfolio-service")
	var msgs []kafka.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, eventMessage(t, TopicCredit, 0, int64(i), testEvent(fmt.Sprintf("e%d", i))))
	}
	c.addReader(TopicCredit, 0, newFakeReader(msgs...))

	sess := newFakeSession(map[string][]kafka.PartitionAssignment{
		TopicCredit: {{ID: 0, Offset: 0}},
	})
	c.sessions <- sess

	r, dlq := newTestRuntime(t, c)

	var (
		mu       sync.Mutex
		seen     []string
		inflight int
		maxSeen  int
		failedE2 bool
	)
	handler := func(ctx context.Context, ev Event) error {
		mu.Lock()
		inflight++
		if inflight > maxSeen {
			maxSeen = inflight
		}
		seen = append(seen, ev.ID)
		fail := ev.ID == "e2" && !failedE2
		if fail {
			failedE2 = true
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inflight--
		mu.Unlock()
		if fail {
			return errors.New("transient")
		}
		return nil
	}

	// The retry pause for e2 must not let e3 through.
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	sub, err := r.Consume(context.Background(), "portfolio-service", []string{TopicCredit}, handler)
	require.NoError(t, err)
	assert.Equal(t, "portfolio-service", sub.GroupID())
	assert.Equal(t, []string{TopicCredit}, sub.Topics())
	assert.Equal(t, 1, r.Active())

	require.Eventually(t, func() bool { return len(sess.committed()) == 5 }, waitFor, 5*time.Millisecond)

	require.NoError(t, sub.Close())
	waitClosed(t, sub.Done())

	mu.Lock()
	assert.Equal(t, []string{"e0", "e1", "e2", "e2", "e3", "e4"}, seen)
	assert.Equal(t, 1, maxSeen, "one message at a time per partition")
	mu.Unlock()

	for i, commit := range sess.committed() {
		assert.Equal(t, commitOf(TopicCredit, 0, int64(i+1)), commit)
	}
	assert.Equal(t, 1, sess.heartbeatCount())
	assert.Empty(t, dlq.messages())
	assert.Equal(t, 1, c.closeCount())
	assert.Zero(t, r.Active())
	assert.True(t, c.readers[TopicCredit+"/0"].isClosed())
}

func TestConsumerRuntime_PartitionsRunIndependently(t *testing.T) {
	t.Parallel()

	c := newFakeConsumer("reporting")
	c.addReader(TopicCompliance, 0, newFakeReader(
		eventMessage(t, TopicCompliance, 0, 10, testEvent("a1")),
		eventMessage(t, TopicCompliance, 0, 11, testEvent("a2")),
	))
	c.addReader(TopicCompliance, 1, newFakeReader(
		eventMessage(t, TopicCompliance, 1, 20, testEvent("b1")),
	))
	sess := newFakeSession(map[string][]kafka.PartitionAssignment{
		TopicCompliance: {{ID: 0, Offset: 10}, {ID: 1, Offset: 20}},
	})
	c.sessions <- sess

	r, _ := newTestRuntime(t, c)
	sub, err := r.Consume(context.Background(), "reporting", []string{TopicCompliance},
		func(context.Context, Event) error { return nil })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sess.committed()) == 3 }, waitFor, 5*time.Millisecond)
	require.NoError(t, sub.Close())

	byPartition := map[int][]int64{}
	for _, commit := range sess.committed() {
		for p, off := range commit[TopicCompliance] {
			byPartition[p] = append(byPartition[p], off)
		}
	}
	assert.Equal(t, []int64{11, 12}, byPartition[0])
	assert.Equal(t, []int64{21}, byPartition[1])
}

func TestConsumerRuntime_FailedMessageIsDeadLettered(t *testing.T) {
	t.Parallel()

	c := newFakeConsumer("notifications")
	c.addReader(TopicNotification, 0, newFakeReader(
		eventMessage(t, TopicNotification, 0, 0, testEvent("n1")),
		kafka.Message{Topic: TopicNotification, Partition: 0, Offset: 1, Value: []byte("garbage")},
	))
	sess := newFakeSession(map[string][]kafka.PartitionAssignment{
		TopicNotification: {{ID: 0, Offset: 0}},
	})
	c.sessions <- sess

	r, dlq := newTestRuntime(t, c)
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	sub, err := r.Consume(context.Background(), "notifications", []string{TopicNotification},
		func(context.Context, Event) error { return errors.New("smtp down") },
		WithMaxRetries(1),
	)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sess.committed()) == 2 }, waitFor, 5*time.Millisecond)
	require.NoError(t, sub.Close())

	routed := dlq.messages()
	require.Len(t, routed, 2)
	assert.Equal(t, 2, routed[0].env.Attempts)
	assert.Equal(t, "garbage", routed[1].message)
}

func TestConsumerRuntime_DefaultRetries(t *testing.T) {
	t.Parallel()

	c := newFakeConsumer("ledger")
	c.addReader(TopicCredit, 0, newFakeReader(eventMessage(t, TopicCredit, 0, 0, testEvent("c1"))))
	sess := newFakeSession(map[string][]kafka.PartitionAssignment{
		TopicCredit: {{ID: 0, Offset: 0}},
	})
	c.sessions <- sess

	cm, err := NewConnectionManager(Config{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	cm.writer = &fakeWriter{}
	cm.admin = newFakeAdmin()

	r := NewConsumerRuntime(cm, newFakeStore(), nil)
	dlq := &fakeDLQ{}
	r.dlq = dlq
	var sleeps []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	r.newConsumer = func(string) GroupConsumer { return c }

	var calls int
	sub, err := r.Consume(context.Background(), "ledger", []string{TopicCredit},
		func(context.Context, Event) error {
			calls++
			return errors.New("ledger unavailable")
		})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sess.committed()) == 1 }, waitFor, 5*time.Millisecond)
	require.NoError(t, sub.Close())
	waitClosed(t, sub.Done())

	assert.Equal(t, DefaultMaxRetries+1, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps)
	routed := dlq.messages()
	require.Len(t, routed, 1)
	assert.Equal(t, DefaultMaxRetries+1, routed[0].env.Attempts)
}

func TestConsumerRuntime_SubscribeFailureReleasesHandle(t *testing.T) {
	t.Parallel()

	c := newFakeConsumer("g")
	c.subscribeErr = errors.New("coordinator not available")
	r, _ := newTestRuntime(t, c)

	_, err := r.Consume(context.Background(), "g", []string{TopicCredit}, func(context.Context, Event) error { return nil })

	assert.ErrorIs(t, err, c.subscribeErr)
	assert.Equal(t, 1, c.closeCount())
	assert.Zero(t, r.Active())
}

func TestConsumerRuntime_TooManyConsumers(t *testing.T) {
	t.Parallel()

	first, second := newFakeConsumer("g1"), newFakeConsumer("g2")
	r, _ := newTestRuntime(t, first, second)
	r.handles = newHandleRegistry(1)
	noop := func(context.Context, Event) error { return nil }

	sub, err := r.Consume(context.Background(), "g1", []string{TopicCredit}, noop)
	require.NoError(t, err)

	_, err = r.Consume(context.Background(), "g2", []string{TopicCredit}, noop)
	assert.ErrorIs(t, err, ErrTooManyConsumers)
	assert.Zero(t, second.closeCount(), "rejected handles were never opened")

	require.NoError(t, sub.Close())
	_, err = r.Consume(context.Background(), "g2", []string{TopicCredit}, noop)
	assert.NoError(t, err, "closing a subscription frees its slot")

	r.Shutdown(context.Background())
}

func TestConsumerRuntime_ContextCancelStopsSubscription(t *testing.T) {
	t.Parallel()

	c := newFakeConsumer("g")
	r, _ := newTestRuntime(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := r.Consume(ctx, "g", []string{TopicCredit}, func(context.Context, Event) error { return nil })
	require.NoError(t, err)

	cancel()
	waitClosed(t, sub.Done())
	assert.Equal(t, 1, c.closeCount())
	assert.Zero(t, r.Active())
}

func TestConsumerRuntime_Shutdown(t *testing.T) {
	t.Parallel()

	broken, healthy := newFakeConsumer("broken"), newFakeConsumer("healthy")
	broken.closeErr = errors.New("broken pipe")

	log, logs := newObservedLogger()
	r, _ := newTestRuntime(t, broken, healthy, newFakeConsumer("late"))
	r.WithLogger(log)
	noop := func(context.Context, Event) error { return nil }

	subA, err := r.Consume(context.Background(), "broken", []string{TopicCredit}, noop)
	require.NoError(t, err)
	subB, err := r.Consume(context.Background(), "healthy", []string{TopicTeam}, noop)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Active())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	r.Shutdown(ctx)

	assert.Equal(t, 1, broken.closeCount())
	assert.Equal(t, 1, healthy.closeCount(), "a failing handle does not stop the others")
	assert.Equal(t, 1, logs.FilterMessage("Failed to disconnect consumer gracefully").Len())
	assert.Zero(t, r.Active())
	waitClosed(t, subA.Done())
	waitClosed(t, subB.Done())

	_, err = r.Consume(context.Background(), "late", []string{TopicCredit}, noop)
	assert.ErrorIs(t, err, ErrRuntimeClosed)

	assert.ErrorIs(t, subA.Close(), broken.closeErr, "close reports the first close result")
}
