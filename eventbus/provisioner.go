package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/observability"
	"github.com/segmentio/kafka-go"
)

const defaultLeaderPollInterval = 500 * time.Millisecond

// TopicProvisioner creates the platform topics that do not exist yet.
type TopicProvisioner struct {
	instrumentation

	admin             AdminClient
	topics            []TopicDescriptor
	replicationFactor int
	leaderWait        time.Duration
	pollInterval      time.Duration
}

// NewTopicProvisioner provisions the platform registry through cm's admin
// client. The dead-letter entry takes the configured dead-letter topic name.
func NewTopicProvisioner(cm *ConnectionManager) *TopicProvisioner {
	topics := DefaultTopics()
	for i := range topics {
		if topics[i].Name == TopicDeadLetter {
			topics[i].Name = cm.cfg.DeadLetterTopic
		}
	}
	return &TopicProvisioner{
		instrumentation:   cm.instrumentation,
		admin:             cm.Admin(),
		topics:            topics,
		replicationFactor: cm.cfg.ReplicationFactor,
		leaderWait:        cm.cfg.LeaderWaitTimeout,
		pollInterval:      defaultLeaderPollInterval,
	}
}

// WithTopics replaces the registry being provisioned.
func (p *TopicProvisioner) WithTopics(topics ...TopicDescriptor) *TopicProvisioner {
	p.topics = append([]TopicDescriptor(nil), topics...)
	return p
}

// WithObserver reports topic creation to observer.
func (p *TopicProvisioner) WithObserver(observer observability.Observer) *TopicProvisioner {
	p.observer = observer
	return p
}

// WithLogger attaches a logger.
func (p *TopicProvisioner) WithLogger(logger Logger) *TopicProvisioner {
	p.logger = logger
	return p
}

// EnsureTopics creates every registry topic missing from the cluster in one
// request and waits for their partition leaders. It returns the names it
// created. Running it again against the same cluster creates nothing.
//
// A topic the broker reports as already existing counts as created. Any
// other failure is logged with the list of failed topics and returned as a
// *BrokerError; topics created before the failure are kept.
func (p *TopicProvisioner) EnsureTopics(ctx context.Context) ([]string, error) {
	md, err := p.admin.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		p.logError(ctx, "Failed to list Kafka topics", err, nil)
		return nil, &BrokerError{Op: "list topics", Err: err}
	}

	existing := make(map[string]struct{}, len(md.Topics))
	for _, t := range md.Topics {
		if t.Error == nil {
			existing[t.Name] = struct{}{}
		}
	}

	var missing []kafka.TopicConfig
	descriptions := make(map[string]string)
	for _, d := range p.topics {
		if _, ok := existing[d.Name]; ok {
			continue
		}
		descriptions[d.Name] = d.Description
		missing = append(missing, kafka.TopicConfig{
			Topic:             d.Name,
			NumPartitions:     d.Partitions,
			ReplicationFactor: p.replicationFactor,
			ConfigEntries: []kafka.ConfigEntry{{
				ConfigName:  "retention.ms",
				ConfigValue: strconv.FormatInt(d.RetentionMillis(), 10),
			}},
		})
	}
	if len(missing) == 0 {
		p.logDebug(ctx, "All Kafka topics already exist", map[string]interface{}{"count": len(p.topics)})
		return nil, nil
	}

	names := make([]string, len(missing))
	for i, t := range missing {
		names[i] = t.Topic
	}
	p.logInfo(ctx, "Creating Kafka topics", map[string]interface{}{
		"topics":       names,
		"descriptions": descriptions,
	})

	start := time.Now()
	resp, err := p.admin.CreateTopics(ctx, &kafka.CreateTopicsRequest{Topics: missing})

	var (
		created []string
		failed  []string
		errs    []error
	)
	if err != nil {
		failed, errs = names, []error{err}
	} else {
		for _, name := range names {
			topicErr := resp.Errors[name]
			if topicErr == nil || errors.Is(topicErr, kafka.TopicAlreadyExists) {
				created = append(created, name)
				continue
			}
			failed = append(failed, name)
			errs = append(errs, fmt.Errorf("%s: %w", name, topicErr))
		}
	}

	createErr := errors.Join(errs...)
	p.observeOperation("create_topics", "", "", time.Since(start), createErr, int64(len(missing)), map[string]interface{}{
		"created": len(created),
		"failed":  len(failed),
	})
	if createErr != nil {
		p.logWarn(ctx, "Failed to create some Kafka topics", createErr, map[string]interface{}{
			"failed":  failed,
			"created": created,
		})
		return created, &BrokerError{Op: "create topics", Err: createErr}
	}

	if err := p.waitForLeaders(ctx, missing); err != nil {
		p.logError(ctx, "Kafka topics created but leaders not elected", err, map[string]interface{}{
			"topics": created,
		})
		return created, &BrokerError{Op: "wait for leaders", Err: err}
	}

	p.logInfo(ctx, "Kafka topics created", map[string]interface{}{"topics": created})
	return created, nil
}

// waitForLeaders polls metadata until every partition of topics has a
// leader or leaderWait elapses.
func (p *TopicProvisioner) waitForLeaders(ctx context.Context, topics []kafka.TopicConfig) error {
	if p.leaderWait <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.leaderWait)
	defer cancel()

	want := make(map[string]int, len(topics))
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		want[t.Topic] = t.NumPartitions
		names = append(names, t.Topic)
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		md, err := p.admin.Metadata(ctx, &kafka.MetadataRequest{Topics: names})
		if err == nil && leadersElected(md, want) {
			return nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("%w: %v", ErrLeaderNotAvailable, err)
			}
			return ErrLeaderNotAvailable
		case <-ticker.C:
		}
	}
}

func leadersElected(md *kafka.MetadataResponse, want map[string]int) bool {
	ready := 0
	for _, t := range md.Topics {
		n, ok := want[t.Name]
		if !ok || t.Error != nil || len(t.Partitions) < n {
			continue
		}
		led := true
		for _, part := range t.Partitions {
			if part.Error != nil || part.Leader.Host == "" {
				led = false
				break
			}
		}
		if led {
			ready++
		}
	}
	return ready == len(want)
}
