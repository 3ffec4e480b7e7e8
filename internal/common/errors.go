// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound          = errors.New("not found")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Remote errors. The remote package wraps its concrete error types so that
	// errors.Is matches one of these classes.
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrServerRejected       = errors.New("server rejected request")
	ErrDecodingMismatch     = errors.New("malformed server response")

	// Local precondition errors, always surfaced to the caller.
	ErrNoAccountAvailable = errors.New("no account available")
	ErrOfflineNotAllowed  = errors.New("operation not allowed while offline")
	ErrInvalidResponse    = errors.New("invalid response")
	ErrCategoryNotFound   = errors.New("category not found")
	ErrPendingSync        = errors.New("change saved locally, pending sync")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsUnreachable reports whether err means the server could not be reached or
// could not be understood, as opposed to the server refusing the request.
// Only unreachable failures degrade to the local fallback and outbox path.
//
// 5xx answers count as unreachable: the request was well formed and the
// server failed to process it, so replaying later is the right response.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransportUnavailable) ||
		errors.Is(err, ErrDecodingMismatch) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode() >= 500
	}
	return false
}

// IsRejected reports whether the server answered with the given status.
func IsRejected(err error, status int) bool {
	var sc StatusCoder
	return errors.As(err, &sc) && sc.StatusCode() == status
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsUnreachable(err) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
