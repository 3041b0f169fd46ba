// Package storage provides the durable key-value engines behind the
// credential store.
//
// Engines:
//
//   - BadgerEngine: embedded, on-disk; the default for the CLI
//   - RedisEngine: remote; for processes that should share one credential set
//   - MemoryEngine: volatile; for tests and ephemeral sessions
//
// Engines know nothing about credentials: they store opaque byte values
// under string keys.
package storage
