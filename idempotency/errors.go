package idempotency

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrUnknownBackend is returned for an unsupported Config.Backend.
	ErrUnknownBackend = errors.New("unknown idempotency backend")

	// ErrStoreUnavailable wraps connection-level failures of a backend.
	ErrStoreUnavailable = errors.New("idempotency store unavailable")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("idempotency store closed")
)

// translateError maps backend errors onto the package sentinels while keeping
// the original error in the chain.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrStoreClosed, err)
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions, 57P covers admin shutdown and crashes.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	default:
		return err
	}
}
