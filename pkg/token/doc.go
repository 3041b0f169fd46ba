// Package token generates opaque secrets and the digests they are stored
// under.
//
// Secrets are random bytes, base64url encoded, with an optional type
// prefix such as "km_" for API keys. Only the SHA-256 digest of a secret
// is kept at rest; Verify compares in constant time.
package token
