package logger

import (
	"log/slog"
	"strings"
)

// Key patterns whose non-empty string values are fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"credential",
	"authorization",
	"cookie",
	"bearer",
}

// Keys that contain a sensitive pattern but only ever carry identifiers.
var safeKeys = map[string]bool{
	"key_id":     true,
	"key_ids":    true,
	"api_key_id": true,
}

const redactedValue = "***REDACTED***"

const bearerPrefix = "Bearer "

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()

		// Value shape takes priority over key name.
		if IsSensitiveValue(strVal) {
			return slog.String(a.Key, RedactString(strVal))
		}

		if strVal != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// maskValue keeps the first and last three characters of body.
func maskValue(prefix, body string) string {
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks a bearer header value or a JWT, leaving a short hint.
// Other values are returned unchanged.
func RedactString(value string) string {
	switch {
	case strings.HasPrefix(value, bearerPrefix):
		return maskValue(bearerPrefix, strings.TrimPrefix(value, bearerPrefix))
	case looksLikeJWT(value):
		return maskValue("", value)
	default:
		return value
	}
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	if safeKeys[keyLower] {
		return false
	}
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue checks if a value has the shape of a credential.
func IsSensitiveValue(value string) bool {
	return strings.HasPrefix(value, bearerPrefix) || looksLikeJWT(value)
}

// looksLikeJWT matches the compact JWS form: three dot-separated segments
// with a base64url JSON header.
func looksLikeJWT(value string) bool {
	return strings.HasPrefix(value, "eyJ") && strings.Count(value, ".") == 2
}
