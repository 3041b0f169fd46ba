// Package credstore holds the client's persisted session credentials: the
// current access token and the cached user profile.
//
// The store is synchronous and total. Its in-memory copy is authoritative
// for the running process; every change is written through to a
// storage.KVEngine so the session survives a restart. Write-through
// failures are logged, never returned.
//
// Token and user are persisted as one record, so they are always written
// and cleared together.
package credstore
