// Package eventbus is the carbon platform's Kafka event pipeline.
//
// Services publish domain events (credit purchases, portfolio changes,
// compliance updates, ...) through this package and consume them through
// consumer-group subscriptions that deduplicate, retry and dead-letter on
// their behalf.
//
// # Architecture
//
// The package is built from five parts that share one ConnectionManager:
//
//   - ConnectionManager owns the shared publisher, the admin client and the
//     dialer used by consumer-group members.
//   - TopicProvisioner creates the platform topics (see DefaultTopics) that
//     are missing from the cluster.
//   - Producer turns an Event into a JSON message keyed by company id, user
//     id or source, in that order, so one tenant's events keep their order.
//   - DeadLetterRouter publishes messages that cannot be processed to the
//     dead-letter topic. It never fails from the caller's point of view.
//   - ConsumerRuntime runs consumer-group subscriptions.
//
// Broker access goes through small interfaces (MessageWriter, AdminClient,
// GroupConsumer, Session and PartitionReader) so that every component can
// be exercised without a cluster. The concrete types are the kafka-go
// Writer, Client and ConsumerGroup.
//
// Constructors return concrete types; logging, metrics and tracing are
// attached with the With* methods and are all optional:
//
//	cm, err := eventbus.NewConnectionManager(cfg)
//	if err != nil {
//		return err
//	}
//	cm.WithLogger(log).WithObserver(metricsObserver)
//
// Components built from a ConnectionManager inherit its logger and observer.
//
// # Configuration
//
// Config is usually loaded from the environment under the KAFKA_ prefix:
//
//	KAFKA_BROKERS=kafka-1:9092,kafka-2:9092
//	KAFKA_CLIENT_ID=ledger
//	KAFKA_REQUIRED_ACKS=-1
//	KAFKA_MAX_RETRIES=3
//	KAFKA_RETRY_BACKOFF=1s
//	KAFKA_IDEMPOTENCY_TTL=24h
//	KAFKA_DEAD_LETTER_TOPIC=dead-letter.queue
//	KAFKA_SASL_ENABLED=true
//	KAFKA_SASL_MECHANISM=SCRAM-SHA-512
//	KAFKA_TLS_ENABLED=true
//	KAFKA_TLS_CA_CERT_PATH=/etc/kafka/ca.pem
//
// A Config built in Go gets the same defaults for every field left unset.
// MaxRetries and RequiredAcks are pointers because zero is a meaningful
// value for both; use IntPtr to set them explicitly:
//
//	cfg := eventbus.Config{
//		Brokers:      []string{"localhost:9092"},
//		MaxRetries:   eventbus.IntPtr(0),                    // one attempt, no retries
//		RequiredAcks: eventbus.IntPtr(eventbus.RequireOne), // leader only
//	}
//
// # Connecting
//
// Connect sends a metadata request and retries with exponential backoff
// (Config.Retry, 300ms initial pause and five retries by default).
// Authentication failures are not retried. A failure after the last retry
// is a *BrokerError with Op "connect" that matches ErrConnectionFailed:
//
//	if err := cm.Connect(ctx); err != nil {
//		log.Fatal("Kafka is unreachable", err)
//	}
//	defer cm.Shutdown(context.Background())
//
// Ping sends the same request once and backs the /health/kafka endpoint
// served by HealthHandler:
//
//	mux.Handle(eventbus.HealthPath, eventbus.NewHealthHandler(cm, 5*time.Second))
//
// # Topics
//
// The platform owns nine topics:
//
//	credit.events        3 partitions   7 days   Credit lifecycle events
//	portfolio.events     3 partitions   7 days   Portfolio changes
//	compliance.events    2 partitions  30 days   Compliance updates
//	report.events        2 partitions   7 days   Report generation
//	notification.events  3 partitions   3 days   User notifications
//	team.events          2 partitions   7 days   Team management
//	marketplace.events   3 partitions   3 days   Marketplace activity
//	blockchain.events    3 partitions  30 days   On-chain events
//	dead-letter.queue    1 partition   90 days   Failed messages for investigation
//
// EnsureTopics lists the cluster's topics, creates the missing ones in a
// single request with the configured replication factor and retention.ms,
// and waits for their partition leaders:
//
//	created, err := eventbus.NewTopicProvisioner(cm).EnsureTopics(ctx)
//	if err != nil {
//		var be *eventbus.BrokerError
//		if errors.As(err, &be) && be.Op == "create topics" {
//			// some topics were created, see created
//		}
//		return err
//	}
//
// Running it again creates nothing. A topic the broker reports as already
// existing counts as created, so two services provisioning at the same time
// do not fail each other.
//
// # Publishing
//
// NewEvent stamps a ULID id and correlation id, the current UTC time and
// version "1.0":
//
//	ev, err := eventbus.NewEvent("credit.retired", "ledger-service",
//		map[string]interface{}{"creditId": "c-1", "tonnes": 12.5},
//		eventbus.WithCompanyID("acme"),
//		eventbus.WithUserID("u-42"),
//	)
//	if err != nil {
//		return err
//	}
//
//	producer := eventbus.NewProducer(cm)
//	if err := producer.Publish(ctx, eventbus.TopicCredit, ev); err != nil {
//		return err
//	}
//
// PublishBatch sends several events in one write, in order. An empty batch
// sends nothing. Both methods return the broker error unmodified; the
// caller decides whether to retry.
//
// With a tracer attached, every publish runs in a producer span and the
// W3C traceparent header travels with the message:
//
//	producer.WithTracer(tracerClient)
//
// # Consuming
//
// Consume joins a consumer group and calls the handler for every event on
// the given topics:
//
//	store := idempotency.NewMemoryStore()
//	dlq := eventbus.NewDeadLetterRouter(producer, "")
//	runtime := eventbus.NewConsumerRuntime(cm, store, dlq)
//	defer runtime.Shutdown(context.Background())
//
//	sub, err := runtime.Consume(ctx, "reporting-service",
//		[]string{eventbus.TopicCredit, eventbus.TopicCompliance},
//		func(ctx context.Context, ev eventbus.Event) error {
//			var payload CreditRetired
//			if err := ev.DecodeData(&payload); err != nil {
//				return err
//			}
//			return reports.Apply(ctx, ev.CompanyID, payload)
//		},
//		eventbus.WithMaxRetries(5),
//	)
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
// ConsumerRuntime bounds the number of live consumers (Config.MaxConsumers);
// Consume returns ErrTooManyConsumers beyond it and ErrRuntimeClosed after
// Shutdown.
//
// # Processing guarantees
//
// Delivery is at-least-once. For every message the runtime:
//
//  1. parses the value; malformed messages go to the dead-letter topic
//  2. skips events whose id is marked in the idempotency store
//  3. calls the handler up to MaxRetries+1 times, sleeping 1s, 2s, 4s, ...
//     between attempts and sending a group heartbeat after each sleep
//  4. marks the event processed before committing
//  5. routes exhausted events to the dead-letter topic
//
// Every branch commits offset+1 exactly once. A message whose retry sleep
// is interrupted by shutdown or rebalance is left uncommitted and will be
// delivered again. A handler panic counts as a failed attempt.
//
// Each assigned partition is read by its own goroutine, which processes one
// message at a time. There is no ordering across partitions.
//
// Idempotency store failures never block processing: a failed lookup runs
// the handler anyway, and a failed marker write is logged and the offset is
// still committed.
//
// # Dead letters
//
// The dead-letter topic receives a JSON envelope:
//
//	{
//	  "originalTopic": "credit.events",
//	  "originalMessage": {"id": "01J...", "type": "credit.retired", ...},
//	  "error": "ledger rejected credit",
//	  "stackTrace": "...",
//	  "timestamp": "2026-03-01T12:00:05.123Z",
//	  "groupId": "reporting-service",
//	  "partition": 2,
//	  "offset": 41,
//	  "attempts": 4
//	}
//
// Messages that could not be parsed are embedded as their raw text.
// RouteToDLQ can also be called directly by services that give up on an
// event themselves:
//
//	dlq.RouteToDLQ(ctx, eventbus.TopicReport, ev, err)
//
// # Errors
//
// Publish errors are returned unmodified; TranslateError maps them onto the
// package sentinels and IsRetryableError, IsPermanentError and
// IsAuthenticationError classify them:
//
//	if err := producer.Publish(ctx, topic, ev); err != nil {
//		switch {
//		case eventbus.IsRetryableError(err):
//			// try again later
//		case errors.Is(eventbus.TranslateError(err), eventbus.ErrMessageTooLarge):
//			// shrink the payload
//		}
//	}
//
// Errors on the consume path never leave the runtime: they are logged,
// reported to the observer and end in a dead-letter message or a commit.
// ParseError and HandlerError describe them in the dead-letter envelope.
//
// # Observability
//
// Every produce, batch, commit, heartbeat, dead-letter publish, topic
// creation and handler outcome is reported to the observability.Observer
// attached to the component. The metrics package turns these into
// Prometheus series. Handler outcomes are one of OutcomeProcessed,
// OutcomeDuplicate, OutcomeDeadLettered, OutcomeParseFailed and
// OutcomeAbandoned.
//
// # FX Module Integration
//
// FXModule provides every component, connects and provisions topics on
// start, and shuts consumers and the publisher down on stop:
//
//	app := fx.New(
//		config.FXModule,
//		logger.FXModule,
//		metrics.FXModule,
//		tracer.FXModule,
//		idempotency.FXModule,
//		eventbus.FXModule,
//		fx.Invoke(func(rt *eventbus.ConsumerRuntime, lc fx.Lifecycle) {
//			// subscribe handlers in an OnStart hook
//		}),
//	)
//	app.Run()
//
// The logger, observer and tracer are optional dependencies.
//
// # Thread Safety
//
// ConnectionManager, Producer, DeadLetterRouter, ConsumerRuntime and
// HealthHandler are safe for concurrent use. A Handler may be called
// concurrently for different partitions but never for two messages of the
// same partition.
package eventbus
