package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Category returns the public category name for an error
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return "ValidationError"
	case errors.Is(err, ErrAuth):
		return "AuthError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrUpstream):
		return "UpstreamError"
	case errors.Is(err, ErrTransient):
		return "TransientError"
	default:
		return "InternalError"
	}
}

// HTTPStatus maps an error to the status code returned to webhook callers.
// Only validation failures are the caller's fault; everything else is a 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// IsRetryable checks if an error is transient, indicating it can be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, ErrTransient)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory wraps an error with a specific category while keeping the cause in the chain
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", message, category, err)
}

// IsCategory checks if error belongs to specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// Auth wraps error as auth failure
func Auth(message string) error {
	return fmt.Errorf("%s: %w", message, ErrAuth)
}

// Upstream wraps error as upstream failure
func Upstream(message string) error {
	return fmt.Errorf("%s: %w", message, ErrUpstream)
}

// NotFound wraps error as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// InvalidInput wraps error as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// Transient wraps error as transient
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// Internal wraps error as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}
