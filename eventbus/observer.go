package eventbus

import (
	"context"
	"time"

	"github.com/aalemi-dev/carbon-eventbus/observability"
)

// Processing outcomes reported in the "outcome" metadata of handle operations.
const (
	OutcomeProcessed    = "processed"
	OutcomeDuplicate    = "duplicate"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeParseFailed  = "parse_failed"
	OutcomeAbandoned    = "abandoned"
)

// instrumentation carries the optional logger and observer shared by every
// component in this package. The zero value logs and observes nothing.
type instrumentation struct {
	// observer provides optional observability hooks for tracking operations
	observer observability.Observer

	// logger provides optional logging for lifecycle and background operations
	logger Logger
}

// observeOperation safely calls the observer if it's not nil.
func (i *instrumentation) observeOperation(operation, resource, subResource string, duration time.Duration, err error, size int64, metadata map[string]interface{}) {
	if i.observer == nil {
		return
	}
	i.observer.ObserveOperation(observability.OperationContext{
		Component:   "eventbus",
		Operation:   operation,
		Resource:    resource,
		SubResource: subResource,
		Duration:    duration,
		Error:       err,
		Size:        size,
		Metadata:    metadata,
	})
}

func (i *instrumentation) logDebug(ctx context.Context, msg string, fields map[string]interface{}) {
	if i.logger != nil {
		i.logger.DebugWithContext(ctx, msg, nil, fields)
	}
}

func (i *instrumentation) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if i.logger != nil {
		i.logger.InfoWithContext(ctx, msg, nil, fields)
	}
}

func (i *instrumentation) logWarn(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if i.logger != nil {
		i.logger.WarnWithContext(ctx, msg, err, fields)
	}
}

func (i *instrumentation) logError(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if i.logger != nil {
		i.logger.ErrorWithContext(ctx, msg, err, fields)
	}
}
