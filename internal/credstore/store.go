package credstore

import "github.com/yndnr/keymesh-go/internal/core/domain"

// Credentials is a snapshot of the persisted session fields.
type Credentials struct {
	AccessToken string       `json:"accessToken"`
	User        *domain.User `json:"user"`
}

// Empty reports whether neither a token nor a user is held.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.User == nil
}

// Complete reports whether both a token and a user are held.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.User != nil
}

func (c Credentials) clone() Credentials {
	return Credentials{AccessToken: c.AccessToken, User: c.User.Clone()}
}

// Store is the get/set/clear contract consumed by the session manager.
type Store interface {
	Get() Credentials
	Set(accessToken string, user *domain.User)
	Clear()
}

// TokenStore adds the conditional operations the request pipeline needs to
// write the access token without racing an explicit login or logout.
type TokenStore interface {
	Store

	// ReplaceToken swaps the access token from old to next, keeping the
	// cached user. It reports false, and changes nothing, when the
	// current token is not old.
	ReplaceToken(old, next string) bool

	// ClearIfToken clears the store only if it still holds token.
	// It reports whether it cleared.
	ClearIfToken(token string) bool
}
