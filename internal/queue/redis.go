package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
)

// RedisConfig describes how to reach the queue backend.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Connect opens a Redis client and waits until it answers PING, retrying
// up to cfg.RetryAttempts times.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for range attempts {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if IsPermanent(lastErr) {
			return nil, errors.Join(ErrPermanent, lastErr)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}

// RedisQueue stores each named queue as a Redis list: RPUSH to append,
// BLPOP to consume.
type RedisQueue struct {
	client redis.UniversalClient
}

func NewRedisQueue(client redis.UniversalClient) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Push(ctx context.Context, name string, payload []byte) error {
	if err := q.client.RPush(ctx, name, payload).Err(); err != nil {
		return fmt.Errorf("push %s: %w", name, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BLPop(ctx, timeout, name).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrEmpty
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pop %s: %w", name, err)
	}
	// BLPOP answers with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("pop %s: unexpected reply of %d elements", name, len(res))
	}
	return []byte(res[1]), nil
}

// Len reports how many payloads wait in the named queue.
func (q *RedisQueue) Len(ctx context.Context, name string) (int64, error) {
	n, err := q.client.LLen(ctx, name).Result()
	if err != nil {
		return 0, fmt.Errorf("len %s: %w", name, err)
	}
	return n, nil
}

// Healthcheck pings the backend.
func (q *RedisQueue) Healthcheck(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis healthcheck: %w", err)
	}
	return nil
}
