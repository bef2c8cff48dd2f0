package eventbus

import (
	"context"
	"time"
)

// Config defines the configuration of the event bus: how to reach the
// cluster, how topics are provisioned and how consumers retry and
// deduplicate.
type Config struct {
	// ClientID identifies this process to the brokers.
	ClientID string `envconfig:"CLIENT_ID" default:"carbon-eventbus"`

	// Brokers is the list of bootstrap broker addresses (host:port).
	Brokers []string `envconfig:"BROKERS" required:"true"`

	// TLS contains TLS/SSL configuration
	TLS TLSConfig `envconfig:"TLS"`

	// SASL contains SASL authentication configuration
	SASL SASLConfig `envconfig:"SASL"`

	// Retry is the connection retry policy used by Connect.
	Retry RetryConfig `envconfig:"RETRY"`

	// DialTimeout bounds a single broker dial.
	// Default: 10s
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s"`

	// RequestTimeout bounds metadata, topic creation and heartbeat requests.
	// Default: 10s
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`

	// WriteTimeout is the timeout for write operations
	// Default: 10s
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`

	// RequiredAcks determines how many replica acknowledgments to wait for
	// Options:
	//   RequireNone (0): fire-and-forget
	//   RequireOne (1): wait for the leader only
	//   RequireAll (-1): wait for all in-sync replicas
	// Default: RequireAll (-1) when nil
	RequiredAcks *int `envconfig:"REQUIRED_ACKS" default:"-1"`

	// MaxAttempts is the maximum number of attempts to deliver a message
	// Default: 10
	MaxAttempts int `envconfig:"MAX_ATTEMPTS" default:"10"`

	// CompressionCodec specifies the compression algorithm to use
	// Options: "" (none), gzip, snappy, lz4, zstd
	CompressionCodec string `envconfig:"COMPRESSION"`

	// ReplicationFactor is used for every provisioned topic.
	// Default: 1
	ReplicationFactor int `envconfig:"REPLICATION_FACTOR" default:"1"`

	// LeaderWaitTimeout bounds the wait for partition leaders after topics
	// are created.
	// Default: 30s
	LeaderWaitTimeout time.Duration `envconfig:"LEADER_WAIT_TIMEOUT" default:"30s"`

	// MinBytes is the minimum number of bytes to fetch in a single request
	// Default: 1 byte
	MinBytes int `envconfig:"MIN_BYTES" default:"1"`

	// MaxBytes is the maximum number of bytes to fetch in a single request
	// Default: 10MB
	MaxBytes int `envconfig:"MAX_BYTES" default:"10000000"`

	// MaxWait is the maximum amount of time to wait for MinBytes to become available
	// Default: 1s
	MaxWait time.Duration `envconfig:"MAX_WAIT" default:"1s"`

	// SessionTimeout is the consumer group session timeout.
	// Default: 30s
	SessionTimeout time.Duration `envconfig:"SESSION_TIMEOUT" default:"30s"`

	// HeartbeatInterval is how often group membership is refreshed in the
	// background.
	// Default: 3s
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"3s"`

	// RebalanceTimeout is how long members get to rejoin during a rebalance.
	// Default: 30s
	RebalanceTimeout time.Duration `envconfig:"REBALANCE_TIMEOUT" default:"30s"`

	// MaxRetries is the default number of retries after the first handler
	// attempt. Overridden per subscription with WithMaxRetries. Use
	// IntPtr(0) to disable retries.
	// Default: 3 when nil
	MaxRetries *int `envconfig:"MAX_RETRIES" default:"3"`

	// RetryBackoff is the first pause between handler attempts; every
	// following pause doubles.
	// Default: 1s
	RetryBackoff time.Duration `envconfig:"RETRY_BACKOFF" default:"1s"`

	// IdempotencyTTL is how long a processed marker is kept.
	// Default: 24h
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	// IdempotencyKeyPrefix is prepended to the event id to build the marker key.
	// Default: "processed:"
	IdempotencyKeyPrefix string `envconfig:"IDEMPOTENCY_KEY_PREFIX" default:"processed:"`

	// DeadLetterTopic receives events that cannot be processed.
	// Default: "dead-letter.queue"
	DeadLetterTopic string `envconfig:"DEAD_LETTER_TOPIC" default:"dead-letter.queue"`

	// MaxConsumers bounds the number of live consumer handles.
	// Default: 32
	MaxConsumers int `envconfig:"MAX_CONSUMERS" default:"32"`
}

// RetryConfig is the connection retry policy.
type RetryConfig struct {
	// InitialRetryTime is the first pause between connection attempts.
	// Default: 300ms
	InitialRetryTime time.Duration `envconfig:"INITIAL_TIME" default:"300ms"`

	// Retries is the number of retries after the first attempt.
	// Default: 5
	Retries int `envconfig:"RETRIES" default:"5"`
}

// TLSConfig contains TLS/SSL configuration parameters.
type TLSConfig struct {
	// Enabled determines whether to use TLS/SSL for the connection
	Enabled bool `envconfig:"ENABLED"`

	// CACertPath is the file path to the CA certificate for verifying the broker
	CACertPath string `envconfig:"CA_CERT_PATH"`

	// ClientCertPath is the file path to the client certificate
	ClientCertPath string `envconfig:"CLIENT_CERT_PATH"`

	// ClientKeyPath is the file path to the client certificate's private key
	ClientKeyPath string `envconfig:"CLIENT_KEY_PATH"`

	// InsecureSkipVerify controls whether to skip verification of the server's certificate
	// WARNING: Setting this to true is insecure and should only be used in testing
	InsecureSkipVerify bool `envconfig:"INSECURE_SKIP_VERIFY"`
}

// SASLConfig contains SASL authentication configuration parameters.
type SASLConfig struct {
	// Enabled determines whether to use SASL authentication
	Enabled bool `envconfig:"ENABLED"`

	// Mechanism specifies the SASL mechanism to use
	// Options: "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"
	Mechanism string `envconfig:"MECHANISM"`

	// Username is the SASL username
	Username string `envconfig:"USERNAME"`

	// Password is the SASL password
	Password string `envconfig:"PASSWORD"` //nolint:gosec
}

// Logger is the subset of logger.Logger used by the event bus.
type Logger interface {
	// DebugWithContext logs a debug message with trace context.
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})

	// InfoWithContext logs an informational message with trace context.
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})

	// WarnWithContext logs a warning message with trace context.
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})

	// ErrorWithContext logs an error message with trace context.
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// Default values for configuration
const (
	DefaultClientID             = "carbon-eventbus"
	DefaultDialTimeout          = 10 * time.Second
	DefaultRequestTimeout       = 10 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultRequiredAcks         = RequireAll
	DefaultMaxAttempts          = 10
	DefaultReplicationFactor    = 1
	DefaultLeaderWaitTimeout    = 30 * time.Second
	DefaultMinBytes             = 1
	DefaultMaxBytes             = 10e6 // 10MB
	DefaultMaxWait              = 1 * time.Second
	DefaultSessionTimeout       = 30 * time.Second
	DefaultHeartbeatInterval    = 3 * time.Second
	DefaultRebalanceTimeout     = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultRetryBackoff         = 1 * time.Second
	DefaultIdempotencyTTL       = 24 * time.Hour
	DefaultIdempotencyKeyPrefix = "processed:"
	DefaultDeadLetterTopic      = "dead-letter.queue"
	DefaultMaxConsumers         = 32
	DefaultInitialRetryTime     = 300 * time.Millisecond
	DefaultConnectRetries       = 5

	// Producer acknowledgment modes
	RequireNone = 0
	RequireOne  = 1
	RequireAll  = -1
)

// IntPtr returns a pointer to v, for the Config fields where zero is a
// meaningful value.
//
// Example:
//
//	cfg := eventbus.Config{
//		Brokers:      []string{"localhost:9092"},
//		MaxRetries:   eventbus.IntPtr(0),
//		RequiredAcks: eventbus.IntPtr(eventbus.RequireOne),
//	}
func IntPtr(v int) *int {
	return &v
}

// withDefaults fills every unset field with its default. Pointer fields are
// copied so the result never aliases the caller's values.
func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ReplicationFactor == 0 {
		c.ReplicationFactor = DefaultReplicationFactor
	}
	if c.LeaderWaitTimeout == 0 {
		c.LeaderWaitTimeout = DefaultLeaderWaitTimeout
	}
	if c.MinBytes == 0 {
		c.MinBytes = DefaultMinBytes
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxWait == 0 {
		c.MaxWait = DefaultMaxWait
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.RebalanceTimeout == 0 {
		c.RebalanceTimeout = DefaultRebalanceTimeout
	}
	switch {
	case c.MaxRetries == nil:
		c.MaxRetries = IntPtr(DefaultMaxRetries)
	case *c.MaxRetries < 0:
		c.MaxRetries = IntPtr(0)
	default:
		c.MaxRetries = IntPtr(*c.MaxRetries)
	}
	if c.RequiredAcks == nil {
		c.RequiredAcks = IntPtr(DefaultRequiredAcks)
	} else {
		c.RequiredAcks = IntPtr(*c.RequiredAcks)
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.IdempotencyTTL == 0 {
		c.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if c.IdempotencyKeyPrefix == "" {
		c.IdempotencyKeyPrefix = DefaultIdempotencyKeyPrefix
	}
	if c.DeadLetterTopic == "" {
		c.DeadLetterTopic = DefaultDeadLetterTopic
	}
	if c.MaxConsumers <= 0 {
		c.MaxConsumers = DefaultMaxConsumers
	}
	if c.Retry.InitialRetryTime == 0 {
		c.Retry.InitialRetryTime = DefaultInitialRetryTime
	}
	if c.Retry.Retries == 0 {
		c.Retry.Retries = DefaultConnectRetries
	}
	return c
}
