package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/storage"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// CLIConfig is the configuration for keymesh-cli.
type CLIConfig struct {
	// Server is the identity service base URL.
	Server string `koanf:"server" yaml:"server"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// RefreshTimeout bounds one access token refresh round.
	RefreshTimeout time.Duration `koanf:"refresh_timeout" yaml:"refresh_timeout"`

	// RateLimit caps outbound requests per second; 0 disables it.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `koanf:"rate_burst" yaml:"rate_burst"`

	Output string `koanf:"output" yaml:"output"` // table, json, yaml

	TLS    TLSConfig    `koanf:"tls" yaml:"tls"`
	Log    LogConfig    `koanf:"log" yaml:"log"`
	Store  StoreConfig  `koanf:"store" yaml:"store"`
	APIKey APIKeyConfig `koanf:"apikey" yaml:"apikey"`
}

// TLSConfig configures server certificate verification.
type TLSConfig struct {
	// CAFile is a PEM file or directory of private CA certificates
	// trusted in addition to the system roots.
	CAFile string `koanf:"ca_file" yaml:"ca_file,omitempty"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// StoreConfig selects where credentials are persisted.
type StoreConfig struct {
	Engine    string `koanf:"engine" yaml:"engine"` // badger, redis, memory
	Dir       string `koanf:"dir" yaml:"dir"`
	RedisAddr string `koanf:"redis_addr" yaml:"redis_addr,omitempty"`
	RedisDB   int    `koanf:"redis_db" yaml:"redis_db,omitempty"`

	// Passphrase seals the stored credentials. It is never written back
	// to the config file.
	Passphrase string `koanf:"passphrase" yaml:"-"`
}

// APIKeyConfig holds API key defaults.
type APIKeyConfig struct {
	DefaultPermission string `koanf:"default_permission" yaml:"default_permission"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:         "http://localhost:8080/api",
		Timeout:        30 * time.Second,
		RefreshTimeout: 15 * time.Second,
		RateBurst:      1,
		Output:         OutputTable,
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Store: StoreConfig{
			Engine: storage.EngineBadger,
			Dir:    storage.DefaultDir(),
		},
		APIKey: APIKeyConfig{
			DefaultPermission: string(domain.DefaultPermission),
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *CLIConfig) Validate() error {
	var errs []error

	if c.Server == "" {
		errs = append(errs, errors.New("server is required"))
	} else if _, err := url.Parse(c.Server); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("refresh_timeout must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit must not be negative"))
	}

	switch c.Output {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		errs = append(errs, fmt.Errorf("output: unknown format %q", c.Output))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	switch c.Store.Engine {
	case storage.EngineBadger:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for badger"))
		}
	case storage.EngineRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for redis"))
		}
	case storage.EngineMemory:
	default:
		errs = append(errs, fmt.Errorf("store.engine: unknown engine %q", c.Store.Engine))
	}

	if !domain.IsValidPermission(c.APIKey.DefaultPermission) {
		errs = append(errs, fmt.Errorf("apikey.default_permission: unknown permission %q", c.APIKey.DefaultPermission))
	}

	return errors.Join(errs...)
}

// LoggerConfig converts the log section for logger.New.
func (c *CLIConfig) LoggerConfig() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = c.Log.Format
	return cfg
}

// KVConfig converts the store section for storage.Open.
func (c *CLIConfig) KVConfig() storage.KVConfig {
	cfg := storage.DefaultKVConfig(c.Store.Dir)
	cfg.Engine = c.Store.Engine
	cfg.RedisAddr = c.Store.RedisAddr
	cfg.RedisDB = c.Store.RedisDB
	return cfg
}
