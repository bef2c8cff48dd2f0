package idempotency

import (
	"context"
	"io"

	"github.com/aalemi-dev/carbon-eventbus/observability"
	"go.uber.org/fx"
)

// FXModule provides the Store selected by Config.Backend, closes it on stop
// and, for Postgres, runs the expired-row purge in the background.
var FXModule = fx.Module("idempotency",
	fx.Provide(NewStoreWithDI),
	fx.Invoke(RegisterStoreLifecycle),
)

// StoreParams groups the dependencies of NewStoreWithDI.
type StoreParams struct {
	fx.In

	Config   Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewStoreWithDI builds the store with the injected logger and observer.
func NewStoreWithDI(params StoreParams) (Store, error) {
	var opts []Option
	if params.Logger != nil {
		opts = append(opts, WithLogger(params.Logger))
	}
	if params.Observer != nil {
		opts = append(opts, WithObserver(params.Observer))
	}
	return NewStore(context.Background(), params.Config, opts...)
}

// StoreLifecycleParams groups the lifecycle dependencies.
type StoreLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    Config
	Store     Store
	Logger    Logger `optional:"true"`
}

// RegisterStoreLifecycle starts the purge loop and closes the store on stop.
func RegisterStoreLifecycle(params StoreLifecycleParams) {
	purgeCtx, cancelPurge := context.WithCancel(context.Background())
	done := make(chan struct{})

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pg, ok := params.Store.(*PostgresStore)
			interval := params.Config.Postgres.PurgeInterval
			if !ok || interval <= 0 {
				close(done)
				return nil
			}
			go func() {
				defer close(done)
				pg.RunPurge(purgeCtx, interval)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelPurge()
			select {
			case <-done:
			case <-ctx.Done():
			}

			closer, ok := params.Store.(io.Closer)
			if !ok {
				return nil
			}
			if err := closer.Close(); err != nil && params.Logger != nil {
				params.Logger.WarnWithContext(ctx, "Failed to close idempotency store", err)
			}
			return nil
		},
	})
}
