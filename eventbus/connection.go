package eventbus

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/observability"
	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
)

// ConnectionManager owns the process-wide broker clients: the shared
// publisher, the admin client and the dialer used by consumer handles.
//
// ConnectionManager is safe for concurrent use.
type ConnectionManager struct {
	instrumentation

	cfg Config

	transport *kafka.Transport
	dialer    *kafka.Dialer
	writer    MessageWriter
	admin     AdminClient

	shutdownOnce sync.Once
}

// NewConnectionManager builds the broker clients for cfg. No network
// traffic happens until Connect or the first request.
//
// Parameters:
//   - cfg: brokers, security and client settings; unset fields get defaults
//
// Returns:
//   - *ConnectionManager: the shared clients, not yet connected
//   - error: ErrNoBrokers, an unreadable TLS file, an unsupported SASL
//     mechanism or compression codec
//
// Example:
//
//	cm, err := eventbus.NewConnectionManager(cfg)
//	if err != nil {
//		return err
//	}
//	if err := cm.Connect(ctx); err != nil {
//		return err
//	}
//	defer cm.Shutdown(context.Background())
func NewConnectionManager(cfg Config) (*ConnectionManager, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	cfg = cfg.withDefaults()

	var tlsConfig *tls.Config
	var err error
	if cfg.TLS.Enabled {
		tlsConfig, err = createTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	var mechanism sasl.Mechanism
	if cfg.SASL.Enabled {
		mechanism, err = createSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
	}

	compression, err := compressionCodec(cfg.CompressionCodec)
	if err != nil {
		return nil, err
	}

	c := &ConnectionManager{cfg: cfg}

	c.transport = &kafka.Transport{
		ClientID:    cfg.ClientID,
		DialTimeout: cfg.DialTimeout,
		TLS:         tlsConfig,
		SASL:        mechanism,
	}
	c.dialer = &kafka.Dialer{
		ClientID:      cfg.ClientID,
		Timeout:       cfg.DialTimeout,
		DualStack:     true,
		TLS:           tlsConfig,
		SASLMechanism: mechanism,
	}
	c.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Murmur2Balancer{},
		MaxAttempts:  cfg.MaxAttempts,
		RequiredAcks: kafka.RequiredAcks(*cfg.RequiredAcks),
		WriteTimeout: cfg.WriteTimeout,
		Compression:  compression,
		Transport:    c.transport,
		ErrorLogger:  c.errorLogger(),
	}
	c.admin = &kafka.Client{
		Addr:      kafka.TCP(cfg.Brokers...),
		Timeout:   cfg.RequestTimeout,
		Transport: c.transport,
	}

	return c, nil
}

// WithObserver attaches an observer for connection and consumer-handle
// operations.
func (c *ConnectionManager) WithObserver(observer observability.Observer) *ConnectionManager {
	c.observer = observer
	return c
}

// WithLogger attaches a logger. The kafka client's internal error log is
// routed to it as well.
func (c *ConnectionManager) WithLogger(logger Logger) *ConnectionManager {
	c.logger = logger
	if w, ok := c.writer.(*kafka.Writer); ok {
		w.ErrorLogger = c.errorLogger()
	}
	return c
}

// Config returns the effective configuration, defaults applied.
func (c *ConnectionManager) Config() Config {
	return c.cfg
}

// Connect verifies the cluster is reachable, retrying with exponential
// backoff per cfg.Retry. A failure after the last retry is returned as a
// *BrokerError and should abort startup.
func (c *ConnectionManager) Connect(ctx context.Context) error {
	c.logInfo(ctx, "Connecting to Kafka", map[string]interface{}{
		"brokers":   c.cfg.Brokers,
		"client_id": c.cfg.ClientID,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Retry.InitialRetryTime

	start := time.Now()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.Ping(ctx)
		if err != nil && IsAuthenticationError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.Retry.Retries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logWarn(ctx, "Kafka not reachable yet, retrying", err, map[string]interface{}{
				"retry_in": next.String(),
			})
		}),
	)
	c.observeOperation("connect", "", "", time.Since(start), err, 0, nil)
	if err != nil {
		c.logError(ctx, "Failed to connect to Kafka", err, nil)
		return &BrokerError{Op: "connect", Err: err}
	}

	c.logInfo(ctx, "Kafka connected successfully", nil)
	return nil
}

// Ping sends a metadata request for no topics; it succeeds when a broker
// answers.
func (c *ConnectionManager) Ping(ctx context.Context) error {
	_, err := c.admin.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{}})
	return err
}

// Publisher returns the shared publisher.
func (c *ConnectionManager) Publisher() MessageWriter {
	return c.writer
}

// Admin returns the shared admin client.
func (c *ConnectionManager) Admin() AdminClient {
	return c.admin
}

// NewConsumerHandle returns an unconnected group member for groupID. The
// caller owns the handle and must Close it.
func (c *ConnectionManager) NewConsumerHandle(groupID string) *ConsumerHandle {
	return newConsumerHandle(c, groupID)
}

// Shutdown closes the publisher and releases idle broker connections.
// Failures are logged, never returned. Calling it again is a no-op.
func (c *ConnectionManager) Shutdown(ctx context.Context) {
	c.shutdownOnce.Do(func() {
		c.logInfo(ctx, "Disconnecting from Kafka", nil)

		if c.writer != nil {
			if err := c.writer.Close(); err != nil {
				c.logWarn(ctx, "Failed to close Kafka publisher", err, nil)
			}
		}
		if c.transport != nil {
			c.transport.CloseIdleConnections()
		}

		c.logInfo(ctx, "Kafka disconnected successfully", nil)
	})
}

// errorLogger routes the kafka client's internal errors to our logger.
func (c *ConnectionManager) errorLogger() kafka.LoggerFunc {
	logger := c.logger
	return func(msg string, args ...interface{}) {
		if logger == nil {
			return
		}
		logger.ErrorWithContext(context.Background(), "Kafka internal error", nil, map[string]interface{}{
			"error": fmt.Sprintf(msg, args...),
		})
	}
}

// debugLogger routes the kafka client's internal chatter to debug level.
func (c *ConnectionManager) debugLogger() kafka.LoggerFunc {
	logger := c.logger
	return func(msg string, args ...interface{}) {
		if logger == nil {
			return
		}
		logger.DebugWithContext(context.Background(), fmt.Sprintf(msg, args...), nil)
	}
}
