// Package logger provides structured logging for the KeyMesh client.
//
// It wraps log/slog:
//
//   - logger.go: Logger interface, handler construction, dynamic level
//   - context.go: context-carried request id
//   - redact.go: masking of tokens, secrets and passwords
//
// Every attribute passes through the redaction hook, so a bearer token or
// a one-time API key secret handed to a log call never reaches the output
// in clear.
package logger
