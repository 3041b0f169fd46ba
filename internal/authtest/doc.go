// Package authtest provides an in-process identity service for tests.
//
// The server speaks the same HTTP contract as the real service: JWT access
// tokens, an HttpOnly refresh cookie, the /auth/me profile endpoint and the
// API key endpoints. Knobs let tests expire access tokens, fail or delay
// refresh calls, and count requests per endpoint.
package authtest
