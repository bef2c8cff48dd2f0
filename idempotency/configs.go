package idempotency

import "time"

// Supported backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Defaults applied by the constructors.
const (
	DefaultNamespace       = "event_bus:"
	DefaultRedisAddress    = "localhost:6379"
	DefaultRedisTimeout    = 3 * time.Second
	DefaultTable           = "processed_events"
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPurgeInterval   = 10 * time.Minute
)

// Config selects and configures the processed-event store.
type Config struct {
	// Backend is one of redis, postgres or memory.
	Backend string `envconfig:"BACKEND" default:"redis"`

	// Namespace prefixes every key. With the consumer's "processed:" prefix
	// the stored key becomes "event_bus:processed:<event id>".
	Namespace string `envconfig:"NAMESPACE" default:"event_bus:"`

	Redis    RedisConfig    `envconfig:"REDIS"`
	Postgres PostgresConfig `envconfig:"POSTGRES"`
}

// RedisConfig configures RedisStore.
type RedisConfig struct {
	Address  string `envconfig:"ADDRESS" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD" json:"-"` //nolint:gosec
	DB       int    `envconfig:"DB"`

	// Timeout bounds dial, read and write operations.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"3s"`
}

// PostgresConfig configures PostgresStore.
type PostgresConfig struct {
	// DSN is a libpq connection string or URL.
	DSN string `envconfig:"DSN" json:"-"`

	// Table holds one row per processed key. It is created on start.
	Table string `envconfig:"TABLE" default:"processed_events"`

	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"5m"`

	// PurgeInterval is how often expired rows are deleted. Zero disables
	// the background purge; expired rows are still ignored by Get.
	PurgeInterval time.Duration `envconfig:"PURGE_INTERVAL" default:"10m"`
}
