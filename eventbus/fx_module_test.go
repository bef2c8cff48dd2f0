package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/eventbus"
	"github.com/aalemi-dev/carbon-eventbus/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func testModuleConfig() eventbus.Config {
	return eventbus.Config{
		Brokers:         []string{"127.0.0.1:1"},
		DeadLetterTopic: "carbon.dlq",
		DialTimeout:     200 * time.Millisecond,
		RequestTimeout:  200 * time.Millisecond,
		Retry:           eventbus.RetryConfig{InitialRetryTime: time.Millisecond, Retries: 1},
	}
}

func TestFXModule_Provides(t *testing.T) {
	t.Parallel()

	var (
		cm       *eventbus.ConnectionManager
		producer *eventbus.Producer
		dlq      *eventbus.DeadLetterRouter
		prov     *eventbus.TopicProvisioner
		runtime  *eventbus.ConsumerRuntime
		health   *eventbus.HealthHandler
	)

	app := fx.New(
		eventbus.FXModule,
		fx.Provide(
			testModuleConfig,
			func() idempotency.Store { return idempotency.NewMemoryStore() },
		),
		fx.Populate(&cm, &producer, &dlq, &prov, &runtime, &health),
		fx.NopLogger,
	)
	require.NoError(t, app.Err())

	assert.NotNil(t, cm)
	assert.NotNil(t, producer)
	assert.NotNil(t, prov)
	assert.NotNil(t, runtime)
	assert.NotNil(t, health)
	assert.Equal(t, "carbon.dlq", dlq.Topic())
	assert.Zero(t, runtime.Active())
}

func TestFXModule_UnreachableBrokerFailsStart(t *testing.T) {
	t.Parallel()

	app := fx.New(
		eventbus.FXModule,
		fx.Provide(
			testModuleConfig,
			func() idempotency.Store { return idempotency.NewMemoryStore() },
		),
		fx.NopLogger,
	)
	require.NoError(t, app.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := app.Start(ctx)
	var be *eventbus.BrokerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "connect", be.Op)
}

func TestFXModule_MissingBrokers(t *testing.T) {
	t.Parallel()

	app := fx.New(
		eventbus.FXModule,
		fx.Provide(
			func() eventbus.Config { return eventbus.Config{} },
			func() idempotency.Store { return idempotency.NewMemoryStore() },
		),
		fx.NopLogger,
	)
	assert.ErrorIs(t, app.Err(), eventbus.ErrNoBrokers)
}
