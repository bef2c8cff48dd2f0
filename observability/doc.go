// Package observability defines the hook through which the event-bus
// packages report completed operations.
//
// # Overview
//
// Producers, the dead-letter router, the topic provisioner, the consumer
// runtime and the idempotency stores all accept an optional Observer. Every
// produce, batch, commit, heartbeat, dead-letter publish, topic creation,
// store lookup and handler outcome is reported as an OperationContext once
// it completes. The metrics package ships an Observer that turns these into
// Prometheus series; applications may plug in their own.
//
// The packages work without an observer; nothing is reported when none is
// attached.
//
// # Operation Context
//
// One OperationContext shape serves every component:
//
//	Component    "eventbus" or "idempotency"
//	Operation    "produce", "produce_batch", "commit", "heartbeat",
//	             "dead_letter", "handle", "create_topics", "connect",
//	             "get", "set", "purge"
//	Resource     the topic name, or the store backend
//	SubResource  the partition number, when there is one
//	Duration     wall time of the operation
//	Error        nil on success
//	Size         bytes or records involved
//	Metadata     consumer group, offset, attempts, outcome, ...
//
// Handler outcomes carry an "outcome" metadata entry with one of
// "processed", "duplicate", "dead_lettered", "parse_failed" or "abandoned".
// OperationContext.Outcome reads it:
//
//	if op.Operation == "handle" && op.Outcome() == "dead_lettered" {
//	    alerts.Notify(op.Resource)
//	}
//
// # Usage in Components
//
// A component records the start time, performs the operation and reports
// it when an observer is attached:
//
//	start := time.Now()
//	err := p.writer.WriteMessages(ctx, msg)
//	if p.observer != nil {
//	    p.observer.ObserveOperation(observability.OperationContext{
//	        Component: "eventbus",
//	        Operation: "produce",
//	        Resource:  msg.Topic,
//	        Duration:  time.Since(start),
//	        Error:     err,
//	        Size:      int64(len(msg.Value)),
//	    })
//	}
//
// # Usage in Applications
//
// Applications implement Observer, or adapt a function with ObserverFunc,
// and combine several with Multi:
//
//	obs := observability.Multi(
//	    metrics.NewOperationObserver(m),
//	    observability.ObserverFunc(func(op observability.OperationContext) {
//	        if op.Error != nil {
//	            log.Printf("%s/%s on %s failed: %v", op.Component, op.Operation, op.Resource, op.Error)
//	        }
//	    }),
//	)
//
//	cm.WithObserver(obs)
//
// Multi skips nil observers and returns a no-op observer when none remain.
//
// # FX Integration
//
// The event bus and idempotency modules take the Observer as an optional
// dependency. metrics.FXModule provides one, which wires it into every
// component:
//
//	app := fx.New(
//	    metrics.FXModule,
//	    idempotency.FXModule,
//	    eventbus.FXModule,
//	    // ...
//	)
//
// # Performance
//
// ObserveOperation is called synchronously on the hot path, after every
// message. Implementations should return quickly and must be safe for
// concurrent use, since partitions are processed in parallel.
package observability
