package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
)

const defaultRedisTimeout = 5 * time.Second

// RedisEngine implements KVEngine on a Redis server.
type RedisEngine struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  logger.Logger
}

// NewRedisEngine connects to cfg.RedisAddr and validates connectivity with a ping.
func NewRedisEngine(ctx context.Context, cfg KVConfig, log logger.Logger) (*RedisEngine, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis: address is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisEngineWithClient(client, cfg.RedisPrefix, timeout, log), nil
}

// NewRedisEngineWithClient wraps an existing client.
func NewRedisEngineWithClient(client *redis.Client, prefix string, timeout time.Duration, log logger.Logger) *RedisEngine {
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &RedisEngine{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger.OrDefault(log).With("component", "redis"),
	}
}

// Get retrieves a value by key.
func (e *RedisEngine) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	value, err := e.client.Get(ctx, e.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if errors.Is(err, redis.ErrClosed) {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// Set stores a key-value pair without expiry.
func (e *RedisEngine) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.client.Set(ctx, e.prefix+key, value, 0).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes keys with one DEL.
func (e *RedisEngine) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = e.prefix + k
	}
	if err := e.client.Del(ctx, full...).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (e *RedisEngine) Close() error {
	return e.client.Close()
}
