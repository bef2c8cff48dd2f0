package eventbus

import (
	"context"

	"github.com/aalemi-dev/carbon-eventbus/idempotency"
	"github.com/aalemi-dev/carbon-eventbus/observability"
	"github.com/aalemi-dev/carbon-eventbus/tracer"
	"go.uber.org/fx"
)

// FXModule provides the event bus components and manages their lifecycle.
//
// The module provides:
//  1. *ConnectionManager, connected on start and shut down on stop
//  2. *Producer and *DeadLetterRouter on the shared publisher
//  3. *TopicProvisioner, run once on start after connecting
//  4. *ConsumerRuntime, whose consumers are closed on stop
//  5. *HealthHandler for the broker health endpoint
//
// Usage:
//
//	app := fx.New(
//	    eventbus.FXModule,
//	    idempotency.FXModule,
//	    fx.Provide(loadEventBusConfig),
//	)
var FXModule = fx.Module("eventbus",
	fx.Provide(
		NewConnectionManagerWithDI,
		NewProducerWithDI,
		NewDeadLetterRouterWithDI,
		NewTopicProvisioner,
		NewConsumerRuntimeWithDI,
		NewHealthHandlerWithDI,
	),
	fx.Invoke(RegisterEventBusLifecycle),
)

// EventBusParams groups the dependencies needed to create the connection
// manager.
type EventBusParams struct {
	fx.In

	Config   Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewConnectionManagerWithDI creates the connection manager with the
// injected logger and observer. Components built from it inherit both.
func NewConnectionManagerWithDI(params EventBusParams) (*ConnectionManager, error) {
	cm, err := NewConnectionManager(params.Config)
	if err != nil {
		return nil, err
	}
	if params.Logger != nil {
		cm.WithLogger(params.Logger)
	}
	if params.Observer != nil {
		cm.WithObserver(params.Observer)
	}
	return cm, nil
}

// ProducerParams groups the producer dependencies.
type ProducerParams struct {
	fx.In

	ConnectionManager *ConnectionManager
	Tracer            tracer.Tracer `optional:"true"`
}

// NewProducerWithDI creates a producer, traced when a Tracer is provided.
func NewProducerWithDI(params ProducerParams) *Producer {
	p := NewProducer(params.ConnectionManager)
	if params.Tracer != nil {
		p.WithTracer(params.Tracer)
	}
	return p
}

// NewDeadLetterRouterWithDI routes to the configured dead-letter topic.
func NewDeadLetterRouterWithDI(cm *ConnectionManager, producer *Producer) *DeadLetterRouter {
	return NewDeadLetterRouter(producer, cm.Config().DeadLetterTopic)
}

// ConsumerRuntimeParams groups the consumer runtime dependencies.
type ConsumerRuntimeParams struct {
	fx.In

	ConnectionManager *ConnectionManager
	Store             idempotency.Store
	DeadLetter        *DeadLetterRouter
	Tracer            tracer.Tracer `optional:"true"`
}

// NewConsumerRuntimeWithDI creates the consumer runtime.
func NewConsumerRuntimeWithDI(params ConsumerRuntimeParams) *ConsumerRuntime {
	r := NewConsumerRuntime(params.ConnectionManager, params.Store, params.DeadLetter)
	if params.Tracer != nil {
		r.WithTracer(params.Tracer)
	}
	return r
}

// NewHealthHandlerWithDI probes the connection manager.
func NewHealthHandlerWithDI(cm *ConnectionManager) *HealthHandler {
	h := NewHealthHandler(cm, cm.Config().RequestTimeout)
	h.instrumentation = cm.instrumentation
	return h
}

// EventBusLifecycleParams groups the dependencies needed for lifecycle
// management.
type EventBusLifecycleParams struct {
	fx.In

	Lifecycle         fx.Lifecycle
	ConnectionManager *ConnectionManager
	Provisioner       *TopicProvisioner
	Runtime           *ConsumerRuntime
}

// RegisterEventBusLifecycle connects and provisions topics on start; either
// failure aborts startup. On stop it closes the consumers first, then the
// shared clients.
func RegisterEventBusLifecycle(params EventBusLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.ConnectionManager.Connect(ctx); err != nil {
				return err
			}
			_, err := params.Provisioner.EnsureTopics(ctx)
			return err
		},
		OnStop: func(ctx context.Context) error {
			params.Runtime.Shutdown(ctx)
			params.ConnectionManager.Shutdown(ctx)
			return nil
		},
	})
}
