package idempotency

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps marks as plain string keys with a Redis TTL, so replicas
// of a consumer group share one view of what was processed.
type RedisStore struct {
	instrumentation

	client    redis.UniversalClient
	namespace string
}

// NewRedisStore connects to cfg.Address and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig, namespace string) (*RedisStore, error) {
	if cfg.Address == "" {
		cfg.Address = DefaultRedisAddress
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRedisTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, translateError(err)
	}

	return NewRedisStoreFromClient(client, namespace), nil
}

// NewRedisStoreFromClient wraps an existing client. Close closes the client.
func NewRedisStoreFromClient(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{
		instrumentation: instrumentation{backend: BackendRedis},
		client:          client,
		namespace:       namespace,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (bool, error) {
	start := time.Now()

	val, err := s.client.Get(ctx, s.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		s.observe("get", start, nil, false)
		return false, nil
	}
	if err != nil {
		err = translateError(err)
		s.observe("get", start, err, false)
		return false, err
	}

	hit, _ := strconv.ParseBool(val)
	s.observe("get", start, nil, hit)
	return hit, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value bool, ttl time.Duration) error {
	start := time.Now()
	if ttl < 0 {
		ttl = 0
	}

	err := translateError(s.client.Set(ctx, s.namespace+key, strconv.FormatBool(value), ttl).Err())
	s.observe("set", start, err, false)
	return err
}

// Ping checks that Redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	return translateError(s.client.Ping(ctx).Err())
}

// Close releases the client's connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
