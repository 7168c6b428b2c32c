// Package apperror defines the error taxonomy shared by every layer.
//
// Each category is a sentinel error. Constructors return an *AppError that
// wraps the sentinel, so callers classify with errors.Is and read the
// human-readable message with errors.As:
//
//	if errors.Is(err, apperror.ErrConflict) { ... }
//
// Transport layers (HTTP handlers, the CLI) map categories to their own codes;
// nothing in here knows about HTTP.
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

	// ErrProtected marks an attempt to remove or relocate something that must
	// always exist, such as a user's root folder.
	ErrProtected = errors.New("protected")

	// ErrTransient marks storage that is busy, locked or timed out. The
	// operation did not commit and may be retried by the caller.
	ErrTransient = errors.New("transient storage error")
)

type AppError struct {
	Err     error  // sentinel category
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, kept for logs
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the category and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// PathNotFound is NotFound for lookups keyed by a namespace path.
func PathNotFound(resource, path string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found at path %q", resource, path),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// NameTaken reports a sibling-name collision inside a folder.
func NameTaken(name, parentPath string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%q already exists in folder %q", name, parentPath),
		Field:   "name",
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

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func Protected(message string) *AppError {
	return &AppError{
		Err:     ErrProtected,
		Message: message,
	}
}

// Transient wraps a storage failure the caller may retry.
func Transient(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrTransient,
		Message: fmt.Sprintf("%s: storage temporarily unavailable", op),
		Cause:   cause,
	}
}
