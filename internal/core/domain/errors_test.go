package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("KM-TEST-1000", "test message"),
			expected: "[KM-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("KM-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[KM-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("KM-TEST-1000", "message 1")
	err2 := NewDomainError("KM-TEST-1000", "message 2")
	err3 := NewDomainError("KM-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_WrappedIs(t *testing.T) {
	err := fmt.Errorf("list api keys: %w", ErrNotFound.WithDetails("key k1"))

	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped ErrNotFound should match")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("wrapped ErrNotFound should not match ErrConflict")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := ErrNetworkFailure.WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestDomainError_CopiesDoNotMutateSentinel(t *testing.T) {
	_ = ErrValidationFailure.WithDetails("name is required")

	if ErrValidationFailure.Details != "" {
		t.Errorf("sentinel details mutated: %q", ErrValidationFailure.Details)
	}
}

func TestIsDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"matching code", ErrConflict, "KM-RES-4090", true},
		{"other code", ErrConflict, "KM-RES-4040", false},
		{"any domain error", fmt.Errorf("wrap: %w", ErrPermissionDenied), "", true},
		{"plain error", errors.New("boom"), "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDomainError(tt.err, tt.code); got != tt.want {
				t.Errorf("IsDomainError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(fmt.Errorf("x: %w", ErrAuthenticationExpired)); got != "KM-AUTH-4011" {
		t.Errorf("GetErrorCode() = %q, want KM-AUTH-4011", got)
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Errorf("GetErrorCode() = %q, want empty", got)
	}
}
