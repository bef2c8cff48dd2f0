// Package config loads the event bus application configuration from the
// environment.
//
// Every component keeps its own Config type; this package only composes them
// under one prefix each:
//
//	SERVICE_NAME=ledger
//	LOGGER_LEVEL=debug
//	KAFKA_BROKERS=kafka-1:9092,kafka-2:9092
//	KAFKA_SASL_ENABLED=true
//	IDEMPOTENCY_BACKEND=redis
//	IDEMPOTENCY_REDIS_ADDRESS=redis:6379
//	METRICS_APPLICATION_ADDRESS=:9091
//	TRACER_ENABLE_EXPORT=true
//	HEALTH_ADDRESS=:8081
//	TAIL_GROUP_ID=eventbus-tail
//	TAIL_TOPICS=credit.events,team.events
package config

import (
	"fmt"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/eventbus"
	"github.com/aalemi-dev/carbon-eventbus/idempotency"
	"github.com/aalemi-dev/carbon-eventbus/logger"
	"github.com/aalemi-dev/carbon-eventbus/metrics"
	"github.com/aalemi-dev/carbon-eventbus/tracer"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/fx"
)

// AppConfig is the complete configuration of the eventbus binary.
type AppConfig struct {
	// ServiceName is copied into the logger, metrics and tracer configs
	// when they leave it empty.
	ServiceName string `envconfig:"SERVICE_NAME" default:"carbon-eventbus"`

	Logger      logger.Config      `envconfig:"LOGGER"`
	Metrics     metrics.Config     `envconfig:"METRICS"`
	Tracer      tracer.Config      `envconfig:"TRACER"`
	Kafka       eventbus.Config    `envconfig:"KAFKA"`
	Idempotency idempotency.Config `envconfig:"IDEMPOTENCY"`
	Health      HealthConfig       `envconfig:"HEALTH"`
	Tail        TailConfig         `envconfig:"TAIL"`
}

// HealthConfig configures the health endpoint server.
type HealthConfig struct {
	// Address is the listen address. Empty disables the server.
	Address string `envconfig:"ADDRESS" default:":8081"`

	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
}

// TailConfig configures the optional subscriber that logs every event it
// receives. It runs only when both fields are set.
type TailConfig struct {
	GroupID string   `envconfig:"GROUP_ID"`
	Topics  []string `envconfig:"TOPICS"`
}

// Enabled reports whether the tail subscriber should run.
func (t TailConfig) Enabled() bool {
	return t.GroupID != "" && len(t.Topics) > 0
}

// Load reads AppConfig from the environment.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Logger.ServiceName == "" {
		cfg.Logger.ServiceName = cfg.ServiceName
	}
	if cfg.Metrics.ServiceName == "" {
		cfg.Metrics.ServiceName = cfg.ServiceName
	}
	if cfg.Tracer.ServiceName == "" {
		cfg.Tracer.ServiceName = cfg.ServiceName
	}
	if cfg.Kafka.ClientID == eventbus.DefaultClientID {
		cfg.Kafka.ClientID = cfg.ServiceName
	}
	return cfg, nil
}

// FXModule provides AppConfig and each component's Config from it.
var FXModule = fx.Module("config",
	fx.Provide(
		Load,
		func(c AppConfig) logger.Config { return c.Logger },
		func(c AppConfig) metrics.Config { return c.Metrics },
		func(c AppConfig) tracer.Config { return c.Tracer },
		func(c AppConfig) eventbus.Config { return c.Kafka },
		func(c AppConfig) idempotency.Config { return c.Idempotency },
		func(c AppConfig) HealthConfig { return c.Health },
		func(c AppConfig) TailConfig { return c.Tail },
	),
)
