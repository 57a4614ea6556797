package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/resource"
	"github.com/phrazzld/owl-api/internal/service/auth"
	"github.com/phrazzld/owl-api/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.NewValidationError("video_url", "is required", nil), http.StatusBadRequest},
		{"invalid id", domain.NewValidationError("id", "has invalid format", domain.ErrInvalidID), http.StatusBadRequest},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"forbidden", task.ErrForbidden, http.StatusForbidden},
		{"not found", fmt.Errorf("get: %w", task.ErrTaskNotFound), http.StatusNotFound},
		{"not ready", fmt.Errorf("%w: task is processing", task.ErrNotReady), http.StatusConflict},
		{"insufficient resources", resource.ErrInsufficientResources, http.StatusServiceUnavailable},
		{"shutting down", task.ErrShuttingDown, http.StatusServiceUnavailable},
		{"invariant violation", task.ErrInvalidTransition, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "An unexpected error occurred"},
		{"field validation", domain.NewValidationError("max_videos", "must be at most 100", nil), "Invalid max_videos: must be at most 100"},
		{"bare validation", domain.NewValidationError("", "required fields are missing", nil), "Invalid request: required fields are missing"},
		{"expired", auth.ErrExpiredToken, "Token expired"},
		{"forbidden", task.ErrForbidden, "You do not have access to this task"},
		{"not found", task.ErrTaskNotFound, "Task not found"},
		{"not ready", task.ErrNotReady, "Task result is not ready"},
		{"capacity", fmt.Errorf("reserve: %w", resource.ErrInsufficientResources), "No analysis capacity is available right now, please retry later"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, GetSafeErrorMessage(tc.err))
		})
	}
}

func TestGetSafeErrorMessageHidesInternalDetail(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("failed to save task: pq: password authentication failed for user \"owl\" at 10.0.0.5")
	msg := GetSafeErrorMessage(err)
	assert.Equal(t, "An unexpected error occurred", msg)
	assert.NotContains(t, msg, "10.0.0.5")
}
