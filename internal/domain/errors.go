// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a job or request fails validation.
	// This is usually wrapped in a ValidationError naming the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidURL is returned when a target URL does not match the shape expected
	// for the job kind (video link vs. profile link).
	ErrInvalidURL = errors.New("invalid target URL")

	// ErrUnsupportedPlatform is returned when a URL belongs to no known platform.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrUnknownJobKind is returned when a serialized job names a kind this build
	// does not know how to decode.
	ErrUnknownJobKind = errors.New("unknown job kind")

	// ErrUnauthorized is returned when a request carries no usable principal.
	ErrUnauthorized = errors.New("unauthorized operation")
)

// ValidationError describes a single invalid field. It unwraps to the underlying
// sentinel (ErrValidation unless a more specific one was given) so callers can
// classify it with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports ErrValidation for every ValidationError so that a more specific
// sentinel does not hide the validation classification.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for field. If err is nil the
// error wraps ErrValidation.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{Field: field, Message: message, Err: err}
}
