package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fleetflow/fleetflow/internal/auth"
	"github.com/fleetflow/fleetflow/internal/ratelimit"
	"github.com/fleetflow/fleetflow/internal/rbac"
)

// APIError is a classified failure carrying the status class and machine
// code rendered into the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements error.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUnauthorized builds a 401-class error with a deliberately generic
// message.
func NewUnauthorized() *APIError {
	return &APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized"}
}

// NewForbidden builds a 403-class error.
func NewForbidden() *APIError {
	return &APIError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "Forbidden"}
}

// NewRateLimited builds a 429-class error.
func NewRateLimited() *APIError {
	return &APIError{Status: http.StatusTooManyRequests, Code: "RATE_LIMIT_EXCEEDED", Message: "Too many requests"}
}

// NewValidation builds a 400-class error with a caller-facing detail.
func NewValidation(message string) *APIError {
	if message == "" {
		message = "Validation failed"
	}
	return &APIError{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: message}
}

// NewNotFound builds a 404-class error.
func NewNotFound(message string) *APIError {
	if message == "" {
		message = "Not found"
	}
	return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

// NewConflict builds a 409-class error.
func NewConflict(message string) *APIError {
	if message == "" {
		message = "Conflict"
	}
	return &APIError{Status: http.StatusConflict, Code: "CONFLICT", Message: message}
}

func newInternal() *APIError {
	return &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "Internal server error"}
}

// Classify maps any error to an APIError. Component sentinels keep their
// status class; everything unrecognized collapses into a generic 500 so
// no collaborator detail leaks to the caller.
func Classify(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidCredentials):
		return NewUnauthorized()
	case errors.Is(err, rbac.ErrForbidden):
		return NewForbidden()
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return NewRateLimited()
	default:
		return newInternal()
	}
}
