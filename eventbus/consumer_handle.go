package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
)

// ConsumerHandle is one consumer-group member. It joins the group on
// Subscribe and hands out a Session per generation of membership. Offsets
// are only committed explicitly through the Session.
type ConsumerHandle struct {
	cm      *ConnectionManager
	groupID string

	mu     sync.Mutex
	group  *kafka.ConsumerGroup
	closed bool
}

func newConsumerHandle(cm *ConnectionManager, groupID string) *ConsumerHandle {
	return &ConsumerHandle{cm: cm, groupID: groupID}
}

// GroupID returns the consumer group this handle joins.
func (h *ConsumerHandle) GroupID() string {
	return h.groupID
}

// Subscribe joins the consumer group for topics. Partitions without a
// committed offset start at the newest message.
func (h *ConsumerHandle) Subscribe(ctx context.Context, topics []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return kafka.ErrGroupClosed
	}
	if h.group != nil {
		return fmt.Errorf("consumer group %s already subscribed", h.groupID)
	}

	cfg := h.cm.cfg
	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:                h.groupID,
		Brokers:           cfg.Brokers,
		Dialer:            h.cm.dialer,
		Topics:            topics,
		StartOffset:       kafka.LastOffset,
		SessionTimeout:    cfg.SessionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		RebalanceTimeout:  cfg.RebalanceTimeout,
		Timeout:           cfg.RequestTimeout,
		Logger:            h.cm.debugLogger(),
		ErrorLogger:       h.cm.errorLogger(),
	})
	if err != nil {
		return &BrokerError{Op: "subscribe", Err: err}
	}
	h.group = group
	return nil
}

// Next blocks until the next generation begins.
func (h *ConsumerHandle) Next(ctx context.Context) (Session, error) {
	h.mu.Lock()
	group := h.group
	h.mu.Unlock()

	if group == nil {
		return nil, errors.New("consumer handle is not subscribed")
	}

	gen, err := group.Next(ctx)
	if err != nil {
		return nil, err
	}
	return &generationSession{gen: gen, admin: h.cm.admin}, nil
}

// OpenPartition opens a reader for one assigned partition at offset. The
// offset may be kafka.FirstOffset or kafka.LastOffset.
func (h *ConsumerHandle) OpenPartition(topic string, partition int, offset int64) (PartitionReader, error) {
	cfg := h.cm.cfg
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		Partition:   partition,
		Dialer:      h.cm.dialer,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		ErrorLogger: h.cm.errorLogger(),
	})
	if err := reader.SetOffset(offset); err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("failed to seek %s/%d to %d: %w", topic, partition, offset, err)
	}
	return reader, nil
}

// Close leaves the group. Closing twice is a no-op.
func (h *ConsumerHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	if h.group == nil {
		return nil
	}
	return h.group.Close()
}

// generationSession adapts a kafka-go generation to Session.
type generationSession struct {
	gen   *kafka.Generation
	admin AdminClient
}

func (s *generationSession) Assignments() map[string][]kafka.PartitionAssignment {
	return s.gen.Assignments
}

func (s *generationSession) Start(fn func(ctx context.Context)) {
	s.gen.Start(fn)
}

func (s *generationSession) CommitOffsets(offsets map[string]map[int]int64) error {
	return s.gen.CommitOffsets(offsets)
}

func (s *generationSession) Heartbeat(ctx context.Context) error {
	resp, err := s.admin.Heartbeat(ctx, &kafka.HeartbeatRequest{
		GroupID:      s.gen.GroupID,
		GenerationID: s.gen.ID,
		MemberID:     s.gen.MemberID,
	})
	if err != nil {
		return err
	}
	return resp.Error
}
