package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// DefaultLength is the number of random bytes in a secret.
const DefaultLength = 32

// Prefixes identifying secret types.
const (
	PrefixAPIKey  = "km_"
	PrefixRefresh = "rt_"
)

// Generate returns prefix followed by DefaultLength random bytes.
func Generate(prefix string) (string, error) {
	return GenerateWithLength(prefix, DefaultLength)
}

// GenerateWithLength returns prefix followed by length random bytes.
func GenerateWithLength(prefix string, length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash returns the hex SHA-256 digest of secret.
func Hash(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// Verify reports whether secret matches digest.
func Verify(secret, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(secret)), []byte(digest)) == 1
}
