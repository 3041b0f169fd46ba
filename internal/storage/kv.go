package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// Engine names accepted by Open.
const (
	EngineBadger = "badger"
	EngineRedis  = "redis"
	EngineMemory = "memory"
)

// KVEngine is the minimal durable key-value contract the credential store needs.
//
// Implementations must be safe for concurrent use and, except for the
// memory engine, must keep data across process restarts.
type KVEngine interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a key-value pair.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Close releases the engine.
	Close() error
}

// KVConfig configures an engine.
type KVConfig struct {
	// Engine selects the implementation ("badger", "redis", "memory").
	// Default: "badger"
	Engine string `koanf:"engine"`

	// Dir is the badger directory.
	Dir string `koanf:"dir"`

	// RedisAddr is the redis address (host:port).
	RedisAddr string `koanf:"redis_addr"`

	// RedisDB selects the redis logical database.
	RedisDB int `koanf:"redis_db"`

	// RedisPrefix namespaces every key written to redis.
	// Default: "keymesh:"
	RedisPrefix string `koanf:"redis_prefix"`

	// Timeout bounds each engine operation.
	// Default: 5s
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultKVConfig returns the default configuration rooted at dir.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Engine:      EngineBadger,
		Dir:         dir,
		RedisPrefix: "keymesh:",
		Timeout:     5 * time.Second,
	}
}

// DefaultDir returns ~/.keymesh/credentials.
func DefaultDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".keymesh", "credentials")
}

// Open builds the engine selected by cfg.Engine.
func Open(ctx context.Context, cfg KVConfig, log logger.Logger) (KVEngine, error) {
	switch cfg.Engine {
	case "", EngineBadger:
		return NewBadgerEngine(cfg, log)
	case EngineRedis:
		return NewRedisEngine(ctx, cfg, log)
	case EngineMemory:
		return NewMemoryEngine(), nil
	default:
		return nil, fmt.Errorf("storage: unknown engine %q", cfg.Engine)
	}
}
