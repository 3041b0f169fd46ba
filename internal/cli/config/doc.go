// Package config provides the keymesh-cli configuration.
//
//   - config.go: CLIConfig struct (~/.keymesh/config.yaml) and validation
//   - loader.go: layered loading (defaults, file, .env, environment, flags)
//     and saving
package config
