package tracer

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides *TracerClient and the Tracer interface from a tracer.Config
// and flushes spans on stop.
var FXModule = fx.Module("tracer",
	fx.Provide(
		NewClient,
		fx.Annotate(
			func(t *TracerClient) Tracer { return t },
			fx.As(new(Tracer)),
		),
	),
	fx.Invoke(RegisterTracerLifecycle),
)

// Logger is the subset of logger.Logger used for lifecycle messages.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// TracerLifecycleParams groups the lifecycle dependencies.
type TracerLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Tracer    *TracerClient
	Logger    Logger `optional:"true"`
}

// RegisterTracerLifecycle shuts the provider down when the application stops.
func RegisterTracerLifecycle(params TracerLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if params.Logger != nil {
				params.Logger.InfoWithContext(ctx, "Shutting down tracer", nil)
			}
			return params.Tracer.Shutdown(ctx)
		},
	})
}
