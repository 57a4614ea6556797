package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/api/middleware"
	"github.com/phrazzld/owl-api/internal/api/shared"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/task"
)

// handleAPIError writes the mapped status and safe message for err.
func handleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}

// getPrincipal returns the authenticated principal or writes a 401.
func getPrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := middleware.GetPrincipal(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return domain.Principal{}, false
	}
	return p, true
}

// getPathUUID parses a UUID path parameter.
func getPathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	if raw == "" {
		return uuid.Nil, domain.NewValidationError(param, "is required", domain.ErrInvalidID)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(param, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}

// getPageRequest reads page, page_size and snapshot query parameters.
func getPageRequest(r *http.Request) (task.PageRequest, error) {
	page, err := shared.QueryInt(r, "page", 1)
	if err != nil {
		return task.PageRequest{}, err
	}
	size, err := shared.QueryInt(r, "page_size", task.DefaultPageSize)
	if err != nil {
		return task.PageRequest{}, err
	}
	snapshot, err := shared.QueryUint64(r, "snapshot")
	if err != nil {
		return task.PageRequest{}, err
	}
	return task.PageRequest{Page: page, PageSize: size, Snapshot: snapshot}, nil
}
