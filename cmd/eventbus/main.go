// Command eventbus runs the platform event bus: it connects to Kafka,
// provisions the platform topics, serves the broker health endpoint and the
// metrics servers and, when configured, tails a set of topics into the log.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/aalemi-dev/carbon-eventbus/config"
	"github.com/aalemi-dev/carbon-eventbus/eventbus"
	"github.com/aalemi-dev/carbon-eventbus/idempotency"
	"github.com/aalemi-dev/carbon-eventbus/logger"
	"github.com/aalemi-dev/carbon-eventbus/metrics"
	"github.com/aalemi-dev/carbon-eventbus/tracer"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		config.FXModule,
		logger.FXModule,
		metrics.FXModule,
		tracer.FXModule,
		idempotency.FXModule,
		eventbus.FXModule,
		fx.Provide(
			func(l logger.Logger) eventbus.Logger { return l },
			func(l logger.Logger) idempotency.Logger { return l },
			func(l logger.Logger) metrics.Logger { return l },
			func(l logger.Logger) tracer.Logger { return l },
		),
		fx.Invoke(registerHealthServer, registerTail),
	).Run()
}

type healthServerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.HealthConfig
	Handler   *eventbus.HealthHandler
	Logger    logger.Logger
}

// registerHealthServer serves the health handler on its own listener.
func registerHealthServer(p healthServerParams) {
	if p.Config.Address == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(eventbus.HealthPath, p.Handler)
	srv := &http.Server{
		Addr:              p.Config.Address,
		Handler:           mux,
		ReadHeaderTimeout: p.Config.ReadHeaderTimeout,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			p.Logger.InfoWithContext(ctx, "Starting health server", nil, map[string]interface{}{
				"address": ln.Addr().String(),
				"path":    eventbus.HealthPath,
			})
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.ErrorWithContext(context.Background(), "Health server stopped unexpectedly", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

type tailParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.TailConfig
	Runtime   *eventbus.ConsumerRuntime
	Logger    logger.Logger
}

// registerTail subscribes a logging handler to the configured topics.
func registerTail(p tailParams) {
	if !p.Config.Enabled() {
		return
	}

	var sub *eventbus.Subscription
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			// The start context ends once startup completes.
			sub, err = p.Runtime.Consume(context.Background(), p.Config.GroupID, p.Config.Topics,
				func(ctx context.Context, ev eventbus.Event) error {
					p.Logger.InfoWithContext(ctx, "Event received", nil, map[string]interface{}{
						"event_id":       ev.ID,
						"event_type":     ev.Type,
						"source":         ev.Source,
						"correlation_id": ev.CorrelationID,
						"company_id":     ev.CompanyID,
						"user_id":        ev.UserID,
					})
					return nil
				},
			)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if sub == nil {
				return nil
			}
			if err := sub.Close(); err != nil {
				p.Logger.WarnWithContext(ctx, "Failed to close tail subscription", err)
			}
			return nil
		},
	})
}
