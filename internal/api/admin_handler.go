package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/api/shared"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/resource"
	"github.com/phrazzld/owl-api/internal/task"
)

// TaskAdministrator is the administrative side of the query service.
type TaskAdministrator interface {
	ListAll(ctx context.Context, p domain.Principal, filter task.AdminFilter, req task.PageRequest) (*task.Page, error)
	Delete(ctx context.Context, p domain.Principal, id uuid.UUID) (*task.Record, error)
}

// ResourceLister exposes the pool state. Implemented by *resource.Pool.
type ResourceLister interface {
	Snapshot() []resource.UnitState
}

var (
	_ TaskAdministrator = (*task.QueryService)(nil)
	_ ResourceLister    = (*resource.Pool)(nil)
)

// AdminHandler serves /api/admin. Routes are expected behind RequireAdmin;
// the query service checks the role again.
type AdminHandler struct {
	tasks     TaskAdministrator
	resources ResourceLister
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(tasks TaskAdministrator, resources ResourceLister, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		tasks:     tasks,
		resources: resources,
		logger:    logger.With("component", "admin_handler"),
	}
}

// ListTasks handles GET /api/admin/tasks?state=pending,processing&owner_id=...
func (h *AdminHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	p, ok := getPrincipal(w, r)
	if !ok {
		return
	}
	req, err := getPageRequest(r)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	filter := task.AdminFilter{OwnerID: strings.TrimSpace(r.URL.Query().Get("owner_id"))}
	if raw := r.URL.Query().Get("state"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := task.ParseState(strings.TrimSpace(part))
			if err != nil {
				handleAPIError(w, r, err)
				return
			}
			filter.States = append(filter.States, st)
		}
	}

	page, err := h.tasks.ListAll(r.Context(), p, filter, req)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toHistoryResponse(page, toAdminTaskResponse))
}

// DeleteTask handles DELETE /api/admin/tasks/{id}. Units held by a running
// task are released together with the record.
func (h *AdminHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	p, ok := getPrincipal(w, r)
	if !ok {
		return
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	rec, err := h.tasks.Delete(r.Context(), p, id)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	h.logger.Info("task deleted by administrator",
		"task_id", rec.ID,
		"owner_id", rec.OwnerID,
		"state", rec.State,
		"admin_id", p.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ListResources handles GET /api/admin/resources.
func (h *AdminHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, toResourcesResponse(h.resources.Snapshot()))
}
