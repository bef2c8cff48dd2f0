package idempotency

import (
	"context"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/observability"
)

// instrumentation is embedded by every store for optional logging and observing.
type instrumentation struct {
	backend  string
	observer observability.Observer
	logger   Logger
}

func (i *instrumentation) observe(operation string, start time.Time, err error, hit bool) {
	if i.observer == nil {
		return
	}
	i.observer.ObserveOperation(observability.OperationContext{
		Component: "idempotency",
		Operation: operation,
		Resource:  i.backend,
		Duration:  time.Since(start),
		Error:     err,
		Metadata:  map[string]interface{}{"hit": hit},
	})
}

func (i *instrumentation) logWarn(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if i.logger != nil {
		i.logger.WarnWithContext(ctx, msg, err, fields)
	}
}

func (i *instrumentation) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if i.logger != nil {
		i.logger.InfoWithContext(ctx, msg, nil, fields)
	}
}
