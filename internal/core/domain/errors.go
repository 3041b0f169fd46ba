// Package domain defines the core domain models for the KeyMesh client.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a client error with a structured error code.
type DomainError struct {
	Code    string // Error code (e.g., "KM-AUTH-4010")
	Message string // Human-readable message
	Details string // Optional additional details (server message, field errors)
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
// Two domain errors match when their codes match.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrInvalidCredentials indicates login or registration was rejected.
	ErrInvalidCredentials = NewDomainError("KM-AUTH-4010", "invalid credentials")

	// ErrAuthenticationExpired indicates the session could not be renewed.
	// It always coincides with a forced logout.
	ErrAuthenticationExpired = NewDomainError("KM-AUTH-4011", "authentication expired")

	// ErrPermissionDenied indicates the server rejected the action for the caller's scope.
	ErrPermissionDenied = NewDomainError("KM-AUTH-4030", "permission denied")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrValidationFailure indicates malformed input, caught locally or by the server.
	ErrValidationFailure = NewDomainError("KM-ARG-4000", "validation failed")
)

// ============================================================================
// Resource Errors (RES)
// ============================================================================

var (
	// ErrNotFound indicates the target entity does not exist for the caller.
	ErrNotFound = NewDomainError("KM-RES-4040", "not found")

	// ErrConflict indicates the target entity is already in a terminal state.
	ErrConflict = NewDomainError("KM-RES-4090", "conflict")
)

// ============================================================================
// Transport and System Errors (NET, SYS)
// ============================================================================

var (
	// ErrNetworkFailure indicates a transport-level failure (dial, timeout, reset).
	ErrNetworkFailure = NewDomainError("KM-NET-5030", "network failure")

	// ErrServerFailure indicates the server answered with an unexpected 5xx status.
	ErrServerFailure = NewDomainError("KM-SYS-5000", "server failure")

	// ErrUnexpectedResponse indicates a response body that could not be decoded.
	ErrUnexpectedResponse = NewDomainError("KM-SYS-5001", "unexpected response")
)
