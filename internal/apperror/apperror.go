// Package apperror defines the domain errors shared by services and handlers.
//
// Services return *AppError values wrapping one of the sentinels below;
// handlers translate the sentinel into an HTTP status in one place.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("unavailable")
	ErrRateLimited  = errors.New("rate limited")
)

type AppError struct {
	Err     error  // sentinel
	Message string // human-readable message, safe to show to clients
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound names the missing resource, e.g. "Project not found: abc123".
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s not found: %s", title(resource), id))
}

func ValidationFailed(field, message string) *AppError {
	e := newError(ErrValidation, message)
	e.Field = field
	return e
}

func Conflict(resource, id string) *AppError {
	return newError(ErrConflict, fmt.Sprintf("%s already exists: %s", title(resource), id))
}

// Forbidden maps to 403.
func Forbidden(message string) *AppError { return newError(ErrForbidden, message) }

// Unauthorized is returned for bad credentials. Maps to 401.
func Unauthorized(message string) *AppError { return newError(ErrUnauthorized, message) }

// Unavailable reports that an optional integration (LLM, deploy platform,
// object storage) is not configured or not reachable. Maps to 503.
func Unavailable(message string) *AppError { return newError(ErrUnavailable, message) }

// RateLimited maps to 429.
func RateLimited(message string) *AppError { return newError(ErrRateLimited, message) }

func newError(sentinel error, message string) *AppError {
	return &AppError{Err: sentinel, Message: message}
}

func title(resource string) string {
	if resource == "" {
		return "Resource"
	}
	return strings.ToUpper(resource[:1]) + resource[1:]
}
