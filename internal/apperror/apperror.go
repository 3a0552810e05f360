// Package apperror defines the application's error taxonomy.
//
// Services return these errors; only the HTTP layer knows how they map to
// status codes:
//
//	ErrValidation   → 400 Bad Request
//	ErrUnauthorized → 401 Unauthorized
//	ErrForbidden    → 403 Forbidden
//	ErrNotFound     → 404 Not Found
//	ErrConflict     → 409 Conflict
//	ErrInternal     → 500 Internal Server Error, with the given message
//	anything else   → 500 Internal Server Error
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // safe to show to the client
	Field   string // optional: request field that caused the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing entity. The message names the resource only,
// never the identifier that was looked up.
func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the caller could not be authenticated: bad credentials,
// a missing identity, or a token that failed verification.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Internal is a server-side failure whose message is still safe to return.
// Unexpected errors should be returned as they are instead; the HTTP layer
// hides their text.
func Internal(message string) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: message,
	}
}
