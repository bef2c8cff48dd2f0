package eventbus

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Handler processes one event. A nil error marks the event processed; any
// error (or panic) triggers a retry and, once retries are exhausted, routes
// the event to the dead-letter topic.
type Handler func(ctx context.Context, event Event) error

// MessageWriter publishes messages. *kafka.Writer implements it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AdminClient issues cluster requests. *kafka.Client implements it.
type AdminClient interface {
	Metadata(ctx context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error)
	CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error)
	Heartbeat(ctx context.Context, req *kafka.HeartbeatRequest) (*kafka.HeartbeatResponse, error)
}

// GroupConsumer is one member of a consumer group. *ConsumerHandle
// implements it.
type GroupConsumer interface {
	// Subscribe joins the group for topics. It must be called once,
	// before Next.
	Subscribe(ctx context.Context, topics []string) error

	// Next blocks until the next generation of group membership begins.
	// It returns kafka.ErrGroupClosed once the consumer is closed.
	Next(ctx context.Context) (Session, error)

	// OpenPartition opens a reader positioned at offset.
	OpenPartition(topic string, partition int, offset int64) (PartitionReader, error)

	Close() error
}

// Session is a single generation of group membership.
type Session interface {
	// Assignments lists the partitions owned in this generation, by topic.
	Assignments() map[string][]kafka.PartitionAssignment

	// Start runs fn in a goroutine whose context is canceled when the
	// generation ends.
	Start(fn func(ctx context.Context))

	// CommitOffsets stores the next offset to read for each partition.
	CommitOffsets(offsets map[string]map[int]int64) error

	// Heartbeat tells the coordinator this member is still alive.
	Heartbeat(ctx context.Context) error
}

// PartitionReader reads one partition in offset order.
type PartitionReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}
