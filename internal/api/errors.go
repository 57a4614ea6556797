package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/resource"
	"github.com/phrazzld/owl-api/internal/service/auth"
	"github.com/phrazzld/owl-api/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrUnsupportedPlatform):
		return http.StatusBadRequest

	// Authentication errors
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrMissingSubject):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, task.ErrForbidden):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, task.ErrNotReady):
		return http.StatusConflict

	// Capacity and lifecycle
	case errors.Is(err, resource.ErrInsufficientResources),
		errors.Is(err, task.ErrShuttingDown):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		if verr.Field == "" {
			return "Invalid request: " + verr.Message
		}
		return "Invalid " + verr.Field + ": " + verr.Message

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrUnsupportedPlatform):
		return "Invalid request"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid task ID"

	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrMissingSubject):
		return "Authentication required"

	case errors.Is(err, task.ErrForbidden):
		return "You do not have access to this task"

	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, task.ErrNotReady):
		return "Task result is not ready"

	case errors.Is(err, resource.ErrInsufficientResources):
		return "No analysis capacity is available right now, please retry later"

	case errors.Is(err, task.ErrShuttingDown):
		return "The service is shutting down, please retry later"

	default:
		return "An unexpected error occurred"
	}
}
