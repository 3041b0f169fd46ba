package domain

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the only token type the client presents.
const TokenType = "Bearer"

// ErrOpaqueToken is returned when an access token carries no readable claims.
var ErrOpaqueToken = errors.New("access token is not a JWT")

// TokenClaims is a display-only view of an access token.
//
// The claims are parsed without verification: the server remains the only
// arbiter of validity, and nothing in the client decides on these values.
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ParseTokenClaims extracts the standard claims from a JWT access token.
func ParseTokenClaims(token string) (TokenClaims, error) {
	if token == "" {
		return TokenClaims{}, ErrOpaqueToken
	}

	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return TokenClaims{}, errors.Join(ErrOpaqueToken, err)
	}

	var out TokenClaims
	out.Subject = claims.Subject
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// RefreshResult is the server's answer to a successful refresh call.
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// LoginResult is the server's answer to a successful login call.
// The refresh token never appears here: it travels as an HttpOnly cookie.
type LoginResult struct {
	AccessToken      string `json:"accessToken"`
	TokenType        string `json:"tokenType"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
	User             *User  `json:"user"`
}
