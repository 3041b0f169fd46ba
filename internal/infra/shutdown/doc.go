// Package shutdown cancels work on interrupt so that deferred cleanup,
// such as closing the credential store, still runs.
package shutdown
