package idempotency

import (
	"context"
	"fmt"

	"github.com/aalemi-dev/carbon-eventbus/observability"
)

// Option configures a store built by NewStore.
type Option func(*instrumentation)

// WithObserver reports every get, set and purge to observer.
func WithObserver(observer observability.Observer) Option {
	return func(i *instrumentation) { i.observer = observer }
}

// WithLogger attaches a logger for background warnings.
func WithLogger(logger Logger) Option {
	return func(i *instrumentation) { i.logger = logger }
}

// NewStore builds the store selected by cfg.Backend.
//
//	store, err := idempotency.NewStore(ctx, idempotency.Config{
//	    Backend:   idempotency.BackendRedis,
//	    Namespace: idempotency.DefaultNamespace,
//	    Redis:     idempotency.RedisConfig{Address: "redis:6379"},
//	})
func NewStore(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	var (
		store Store
		inst  *instrumentation
	)

	switch cfg.Backend {
	case BackendRedis, "":
		s, err := NewRedisStore(ctx, cfg.Redis, cfg.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis idempotency store: %w", err)
		}
		store, inst = s, &s.instrumentation
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, cfg.Postgres, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		store, inst = s, &s.instrumentation
	case BackendMemory:
		s := NewMemoryStore()
		store, inst = s, &s.instrumentation
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}

	for _, opt := range opts {
		opt(inst)
	}
	return store, nil
}

func (s *MemoryStore) WithObserver(o observability.Observer) *MemoryStore {
	s.observer = o
	return s
}

func (s *RedisStore) WithObserver(o observability.Observer) *RedisStore {
	s.observer = o
	return s
}

func (s *PostgresStore) WithObserver(o observability.Observer) *PostgresStore {
	s.observer = o
	return s
}

func (s *PostgresStore) WithLogger(l Logger) *PostgresStore {
	s.logger = l
	return s
}
