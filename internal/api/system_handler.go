package api

import (
	"net/http"
	"time"

	"github.com/phrazzld/owl-api/internal/api/shared"
)

// ServiceName is reported by the descriptor and health endpoints.
const ServiceName = "owl-api"

// SystemHandler serves the unauthenticated descriptor and health endpoints.
type SystemHandler struct {
	version string
	now     func() time.Time
}

// NewSystemHandler creates a SystemHandler reporting version.
func NewSystemHandler(version string) *SystemHandler {
	return &SystemHandler{version: version, now: time.Now}
}

// Root handles GET /.
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"service": ServiceName,
		"version": h.version,
		"status":  "running",
		"endpoints": map[string]string{
			"health":           "/health",
			"metrics":          "/metrics",
			"me":               "/api/auth/me",
			"single_video":     "/api/analysis/single-video",
			"complete_account": "/api/analysis/complete-account",
			"task_status":      "/api/analysis/status/{task_id}",
			"task_result":      "/api/analysis/result/{task_id}",
			"history":          "/api/analysis/history",
		},
	})
}

// Health handles GET /health.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   ServiceName,
		"version":   h.version,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
