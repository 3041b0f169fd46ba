// Package service provides the client-side services of KeyMesh.
//
// Services orchestrate calls to the identity service through an
// authorized request pipeline and own the client state derived from them.
// Dependencies are declared as small interfaces so tests can substitute
// fakes.
//
// This package contains:
//
//   - SessionManager: login, registration, logout, profile refresh and
//     startup restoration of the session
//   - APIKeyService: create, list, fetch and revoke API keys
package service
