package config

import (
	"os"
	"testing"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/eventbus"
	"github.com/aalemi-dev/carbon-eventbus/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "carbon-eventbus", cfg.ServiceName)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "carbon-eventbus", cfg.Kafka.ClientID)
	require.NotNil(t, cfg.Kafka.RequiredAcks)
	assert.Equal(t, eventbus.RequireAll, *cfg.Kafka.RequiredAcks)
	require.NotNil(t, cfg.Kafka.MaxRetries)
	assert.Equal(t, 3, *cfg.Kafka.MaxRetries)
	assert.Equal(t, time.Second, cfg.Kafka.RetryBackoff)
	assert.Equal(t, 24*time.Hour, cfg.Kafka.IdempotencyTTL)
	assert.Equal(t, "processed:", cfg.Kafka.IdempotencyKeyPrefix)
	assert.Equal(t, eventbus.DefaultDeadLetterTopic, cfg.Kafka.DeadLetterTopic)
	assert.Equal(t, 300*time.Millisecond, cfg.Kafka.Retry.InitialRetryTime)
	assert.Equal(t, 5, cfg.Kafka.Retry.Retries)

	assert.Equal(t, idempotency.BackendRedis, cfg.Idempotency.Backend)
	assert.Equal(t, idempotency.DefaultNamespace, cfg.Idempotency.Namespace)

	assert.Equal(t, ":8081", cfg.Health.Address)
	assert.False(t, cfg.Tail.Enabled())

	assert.Equal(t, "carbon-eventbus", cfg.Logger.ServiceName)
	assert.Equal(t, "carbon-eventbus", cfg.Tracer.ServiceName)
	assert.Equal(t, "carbon-eventbus", cfg.Metrics.ServiceName)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "ledger")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("KAFKA_MAX_RETRIES", "0")
	t.Setenv("KAFKA_SASL_ENABLED", "true")
	t.Setenv("KAFKA_SASL_MECHANISM", "SCRAM-SHA-512")
	t.Setenv("KAFKA_IDEMPOTENCY_TTL", "1h")
	t.Setenv("LOGGER_LEVEL", "debug")
	t.Setenv("IDEMPOTENCY_BACKEND", "memory")
	t.Setenv("TAIL_GROUP_ID", "eventbus-tail")
	t.Setenv("TAIL_TOPICS", "credit.events,team.events")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ledger", cfg.Kafka.ClientID)
	require.NotNil(t, cfg.Kafka.MaxRetries)
	assert.Equal(t, 0, *cfg.Kafka.MaxRetries)
	assert.True(t, cfg.Kafka.SASL.Enabled)
	assert.Equal(t, "SCRAM-SHA-512", cfg.Kafka.SASL.Mechanism)
	assert.Equal(t, time.Hour, cfg.Kafka.IdempotencyTTL)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "ledger", cfg.Logger.ServiceName)
	assert.Equal(t, idempotency.BackendMemory, cfg.Idempotency.Backend)

	assert.True(t, cfg.Tail.Enabled())
	assert.Equal(t, []string{"credit.events", "team.events"}, cfg.Tail.Topics)
}

func TestLoad_MissingBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	require.NoError(t, os.Unsetenv("KAFKA_BROKERS"))

	_, err := Load()
	assert.ErrorContains(t, err, "BROKERS")
}
