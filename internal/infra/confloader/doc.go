// Package confloader loads layered configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Defaults supplied by the caller as a map
//  2. A YAML configuration file
//  3. A dotenv file
//  4. Process environment variables
//  5. Overrides supplied by the caller as a map (command-line flags)
//
// Environment keys use the prefix followed by the key path, with a double
// underscore separating sections: KEYMESH_STORE__REDIS_ADDR sets
// store.redis_addr.
package confloader
