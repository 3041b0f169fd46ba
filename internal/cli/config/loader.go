package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/keymesh-go/internal/infra/confloader"
)

// DefaultDotEnvPath is read from the working directory when present.
const DefaultDotEnvPath = ".env"

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".keymesh", "config.yaml")
}

// Load loads CLI configuration. Sources, lowest priority first: defaults,
// the config file at path, ./.env, KEYMESH_* environment variables, and
// overrides (command-line flags, keyed by config path).
//
// An empty path means DefaultConfigPath, which may be absent; an explicit
// path must exist.
func Load(path string, overrides map[string]any) (*CLIConfig, error) {
	if path == "" {
		return load(confloader.WithOptionalConfigFile(DefaultConfigPath()), overrides)
	}
	return load(confloader.WithConfigFile(path), overrides)
}

// LoadOptional is Load with the file at path allowed to be absent.
func LoadOptional(path string, overrides map[string]any) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	return load(confloader.WithOptionalConfigFile(path), overrides)
}

func load(fileOpt confloader.Option, overrides map[string]any) (*CLIConfig, error) {
	l := confloader.NewLoader(
		confloader.WithDefaults(defaultsMap(Default())),
		fileOpt,
		confloader.WithDotEnv(DefaultDotEnvPath),
		confloader.WithOverrides(overrides),
	)

	cfg := &CLIConfig{}
	if err := l.Load(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML with owner-only permissions. The passphrase is
// never written.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Encode renders cfg in the config file format, without the passphrase.
func Encode(cfg *CLIConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func defaultsMap(c *CLIConfig) map[string]any {
	return map[string]any{
		"server":                    c.Server,
		"timeout":                   c.Timeout.String(),
		"refresh_timeout":           c.RefreshTimeout.String(),
		"rate_limit":                c.RateLimit,
		"rate_burst":                c.RateBurst,
		"output":                    c.Output,
		"tls.ca_file":               c.TLS.CAFile,
		"log.level":                 c.Log.Level,
		"log.format":                c.Log.Format,
		"store.engine":              c.Store.Engine,
		"store.dir":                 c.Store.Dir,
		"store.redis_addr":          c.Store.RedisAddr,
		"store.redis_db":            c.Store.RedisDB,
		"store.passphrase":          c.Store.Passphrase,
		"apikey.default_permission": c.APIKey.DefaultPermission,
	}
}
