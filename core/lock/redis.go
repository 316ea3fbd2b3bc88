package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when a lock could not be taken before the context ended.
var ErrNotObtained = errors.New("lock not obtained")

// Redis holds locks in Redis.
type Redis struct {
	client *redis.Client
	locker *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// NewRedis connects to cfg.URL.
func NewRedis(cfg Config) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	return newRedis(client, cfg), nil
}

func newRedis(client *redis.Client, cfg Config) *Redis {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := time.Duration(cfg.RetryMillis) * time.Millisecond
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &Redis{
		client: client,
		locker: redislock.New(client),
		ttl:    ttl,
		retry:  retry,
		prefix: cfg.KeyPrefix,
	}
}

// Obtain retries until the lock is taken or ctx is done. Without a deadline on
// ctx, attempts stop after the lock TTL.
func (r *Redis) Obtain(ctx context.Context, key string) (Release, error) {
	l, err := r.locker.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func() {
		// an expired lock is already released
		_ = l.Release(context.WithoutCancel(ctx))
	}, nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
