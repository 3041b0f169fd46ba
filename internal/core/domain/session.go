package domain

// SessionStatus is the lifecycle state of the client session.
type SessionStatus string

const (
	// StatusInitializing is only observed while startup restoration runs.
	StatusInitializing SessionStatus = "initializing"

	// StatusAuthenticated means a user and an access token are held.
	StatusAuthenticated SessionStatus = "authenticated"

	// StatusUnauthenticated means neither a user nor an access token is held.
	StatusUnauthenticated SessionStatus = "unauthenticated"
)

// Session is the client's belief about who is authenticated.
//
// Invariant: AccessToken is non-empty if and only if User is non-nil.
type Session struct {
	Status      SessionStatus `json:"status"`
	User        *User         `json:"user,omitempty"`
	AccessToken string        `json:"-"`
}

// IsAuthenticated reports whether the session holds a user.
func (s Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	return Session{
		Status:      s.Status,
		User:        s.User.Clone(),
		AccessToken: s.AccessToken,
	}
}

// Authenticated builds an authenticated session.
func Authenticated(token string, user *User) Session {
	return Session{
		Status:      StatusAuthenticated,
		User:        user.Clone(),
		AccessToken: token,
	}
}

// Unauthenticated builds an empty, terminal session.
func Unauthenticated() Session {
	return Session{Status: StatusUnauthenticated}
}
