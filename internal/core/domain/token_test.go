package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseTokenClaims(t *testing.T) {
	issued := time.Now().Add(-time.Minute).Truncate(time.Second)
	expires := issued.Add(15 * time.Minute)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := ParseTokenClaims(signed)
	if err != nil {
		t.Fatalf("ParseTokenClaims: %v", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("Subject = %q, want u1", claims.Subject)
	}
	if !claims.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, expires)
	}
	if !claims.IssuedAt.Equal(issued) {
		t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt, issued)
	}
}

func TestParseTokenClaims_Opaque(t *testing.T) {
	for _, tok := range []string{"", "opaque-token-value", "a.b"} {
		_, err := ParseTokenClaims(tok)
		if !errors.Is(err, ErrOpaqueToken) {
			t.Errorf("ParseTokenClaims(%q) error = %v, want ErrOpaqueToken", tok, err)
		}
	}
}
