// Package apperr provides standardized domain error types for the application.
// The conversation engine returns these typed errors so the queue can decide
// between retry, skip, and terminal failure, and the ops API middleware maps
// them to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindValidation indicates invalid input data. Validation errors are never
	// retried; retrying a poison message would loop forever.
	KindValidation
	// KindConflict indicates a conflict with existing state (e.g., duplicate).
	KindConflict
	// KindUnauthorized indicates authentication is required or failed.
	KindUnauthorized
	// KindTransient indicates a retryable upstream failure (AI backend timeout, 5xx).
	KindTransient
	// KindUnavailable indicates the circuit breaker rejected the call without
	// attempting the backend.
	KindUnavailable
	// KindPersistence indicates a durable-store write failed; the triggering
	// job or event must not be acknowledged so it is redelivered.
	KindPersistence
	// KindFatal indicates the retry cap is exhausted and the conversation is
	// terminally failed. Requires human follow-up.
	KindFatal
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string // Operation that failed (optional)
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindTransient:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindPersistence, KindFatal, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Retryable reports whether a job failing with this error should be retried
// by the queue. Validation errors and terminal failures are not.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindValidation, KindFatal, KindNotFound:
		return false
	default:
		return true
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a conflict error (e.g., duplicate resource).
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// Transient creates a retryable upstream-failure error.
func Transient(message string, err error) *Error {
	return Wrap(KindTransient, message, err)
}

// Unavailable creates a circuit-open rejection error.
func Unavailable(message string) *Error {
	return New(KindUnavailable, message)
}

// Persistence creates a durable-store failure error.
func Persistence(message string, err error) *Error {
	return Wrap(KindPersistence, message, err)
}

// Fatal creates a terminal failure error.
func Fatal(message string, err error) *Error {
	return Wrap(KindFatal, message, err)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// GetKind extracts the error kind from an error, unwrapping as needed.
// Returns KindUnknown if no *Error is found in the chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
