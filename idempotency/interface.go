package idempotency

import (
	"context"
	"time"
)

// Store remembers which events were processed successfully.
//
// Get reports whether key is marked; a missing or expired key is false with
// a nil error. Set marks key with value for ttl; ttl <= 0 keeps it forever.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value bool, ttl time.Duration) error
}

// Logger is the subset of logger.Logger the stores use.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}
