package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/aalemi-dev/carbon-eventbus/observability"
	"go.uber.org/fx"
)

// FXModule provides *Metrics, the MetricsCollector interface and an
// observability.Observer backed by OperationObserver, and runs both metrics
// servers for the lifetime of the application.
var FXModule = fx.Module("metrics",
	fx.Provide(
		NewMetrics,
		fx.Annotate(
			func(m *Metrics) MetricsCollector { return m },
			fx.As(new(MetricsCollector)),
		),
		NewOperationObserver,
		fx.Annotate(
			func(o *OperationObserver) observability.Observer { return o },
			fx.As(new(observability.Observer)),
		),
	),
	fx.Invoke(RegisterMetricsLifecycle),
)

// Logger is the subset of logger.Logger used for lifecycle messages.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// MetricsLifecycleParams groups the lifecycle dependencies.
type MetricsLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Metrics   *Metrics
	Logger    Logger `optional:"true"`
}

// RegisterMetricsLifecycle binds both listeners on start, so a port clash
// fails startup, serves them in the background and shuts them down on stop.
func RegisterMetricsLifecycle(params MetricsLifecycleParams) {
	m := params.Metrics
	servers := []*http.Server{m.SystemServer, m.ApplicationServer}

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, srv := range servers {
				if srv == nil {
					continue
				}
				ln, err := net.Listen("tcp", srv.Addr)
				if err != nil {
					return err
				}
				logInfo(ctx, params.Logger, "Starting metrics server", map[string]interface{}{"address": ln.Addr().String()})

				go func(srv *http.Server, ln net.Listener) {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						if params.Logger != nil {
							params.Logger.ErrorWithContext(context.Background(), "Metrics server stopped unexpectedly", err, map[string]interface{}{"address": srv.Addr})
						}
					}
				}(srv, ln)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var errs []error
			for _, srv := range servers {
				if srv == nil {
					continue
				}
				logInfo(ctx, params.Logger, "Shutting down metrics server", map[string]interface{}{"address": srv.Addr})
				if err := srv.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	})
}

func logInfo(ctx context.Context, log Logger, msg string, fields map[string]interface{}) {
	if log != nil {
		log.InfoWithContext(ctx, msg, nil, fields)
	}
}
