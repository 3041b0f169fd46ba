package connection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// AuthMode selects how a request is authorized.
type AuthMode int

const (
	// AuthBearer attaches the stored access token and refreshes on 401.
	AuthBearer AuthMode = iota
	// AuthNone never attaches a token; a 401 means the supplied
	// credentials were rejected.
	AuthNone
)

func (m AuthMode) String() string {
	switch m {
	case AuthBearer:
		return "bearer"
	case AuthNone:
		return "none"
	default:
		return fmt.Sprintf("AuthMode(%d)", int(m))
	}
}

// Request describes one logical call. It is treated as immutable: retries
// resend the same method, path, body and headers.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Auth   AuthMode

	// Credentialed routes the request through the cookie-carrying client.
	Credentialed bool

	Header http.Header
}

// NewRequest builds a bearer request, encoding body as JSON when non-nil.
func NewRequest(method, path string, body any) (Request, error) {
	req := Request{Method: method, Path: path, Auth: AuthBearer}
	if body == nil {
		return req, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Request{}, fmt.Errorf("marshal body: %w", err)
	}
	req.Body = data
	return req, nil
}

// Get returns a bearer GET request.
func Get(path string) Request {
	return Request{Method: http.MethodGet, Path: path, Auth: AuthBearer}
}

// Delete returns a bearer DELETE request.
func Delete(path string) Request {
	return Request{Method: http.MethodDelete, Path: path, Auth: AuthBearer}
}

// Unauthenticated returns a copy that carries no bearer token.
func (r Request) Unauthenticated() Request {
	c := r.clone()
	c.Auth = AuthNone
	return c
}

// WithCredentials returns a copy routed through the cookie-carrying client.
func (r Request) WithCredentials() Request {
	c := r.clone()
	c.Credentialed = true
	return c
}

// clone returns a copy that shares no mutable state with r.
func (r Request) clone() Request {
	r.Body = bytes.Clone(r.Body)
	r.Header = r.Header.Clone()
	return r
}
