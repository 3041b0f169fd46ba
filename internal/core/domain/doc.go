// Package domain defines the core domain models for the KeyMesh client.
//
// Domain models are plain value objects without IO dependencies:
//
//   - User: server-issued identity, cached between runs
//   - Session: the client's belief about who is authenticated
//   - APIKey: long-lived secondary credential with permission scope
//   - TokenClaims: display-only view of an access token's claims
//   - Errors: the client error taxonomy
package domain
