// Package connection implements the authorized request pipeline used by the
// KeyMesh client services.
//
// Every request goes through Pipeline.Do. Bearer requests carry the stored
// access token; a 401 triggers at most one shared refresh call no matter
// how many requests fail concurrently, after which each affected request is
// retried exactly once. A refresh failure or a second 401 ends the session.
package connection
