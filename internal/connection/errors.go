package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/yndnr/keymesh-go/internal/core/domain"
)

// serverError is the error body returned by the identity service.
type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e serverError) details() string {
	msg := e.Message
	if msg == "" {
		msg = e.Error
	}
	if e.Code != "" && msg != "" {
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	return msg
}

// statusError maps a non-2xx response to the domain error taxonomy.
func statusError(status int, auth AuthMode, body []byte) error {
	var base *domain.DomainError
	switch {
	case status == http.StatusUnauthorized && auth == AuthNone:
		base = domain.ErrInvalidCredentials
	case status == http.StatusUnauthorized:
		base = domain.ErrAuthenticationExpired
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		base = domain.ErrValidationFailure
	case status == http.StatusForbidden:
		base = domain.ErrPermissionDenied
	case status == http.StatusNotFound:
		base = domain.ErrNotFound
	case status == http.StatusConflict:
		base = domain.ErrConflict
	case status >= http.StatusInternalServerError:
		base = domain.ErrServerFailure
	default:
		base = domain.ErrUnexpectedResponse
	}

	var se serverError
	if err := json.Unmarshal(body, &se); err == nil && se.details() != "" {
		return base.WithDetails(se.details())
	}
	return base.WithDetails(fmt.Sprintf("status %d", status))
}

// transportError wraps a failure to obtain any response.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return domain.ErrNetworkFailure.WithDetails("request canceled").WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrNetworkFailure.WithDetails("request timed out").WithCause(err)
	}
	return domain.ErrNetworkFailure.WithCause(err)
}

// decodeBody decodes a 2xx body into out. An empty body leaves out untouched.
func decodeBody(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.ErrUnexpectedResponse.WithDetails("malformed response body").WithCause(err)
	}
	return nil
}
