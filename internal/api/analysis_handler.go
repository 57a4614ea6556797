package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/api/shared"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/pipeline"
	"github.com/phrazzld/owl-api/internal/platform/logger"
	"github.com/phrazzld/owl-api/internal/redact"
	"github.com/phrazzld/owl-api/internal/task"
)

const acceptedMessage = "Task created and queued for processing"

// TaskSubmitter admits analysis jobs. Implemented by *task.Orchestrator.
type TaskSubmitter interface {
	Submit(ctx context.Context, ownerID string, spec domain.JobSpec) (*task.Submission, error)
}

// TaskQuerier reads task state on behalf of a principal. Implemented by
// *task.QueryService.
type TaskQuerier interface {
	GetStatus(ctx context.Context, p domain.Principal, id uuid.UUID) (*task.Record, error)
	GetResult(ctx context.Context, p domain.Principal, id uuid.UUID) (*task.Record, error)
	ListHistory(ctx context.Context, p domain.Principal, req task.PageRequest) (*task.Page, error)
}

var (
	_ TaskSubmitter = (*task.Orchestrator)(nil)
	_ TaskQuerier   = (*task.QueryService)(nil)
)

// AnalysisHandler serves the analysis endpoints.
type AnalysisHandler struct {
	submitter TaskSubmitter
	queries   TaskQuerier
	logger    *slog.Logger
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(submitter TaskSubmitter, queries TaskQuerier, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		submitter: submitter,
		queries:   queries,
		logger:    logger.With("component", "analysis_handler"),
	}
}

// SubmitSingleVideo handles POST /api/analysis/single-video.
func (h *AnalysisHandler) SubmitSingleVideo(w http.ResponseWriter, r *http.Request) {
	p, ok := getPrincipal(w, r)
	if !ok {
		return
	}

	var req SingleVideoRequest
	if err := h.decode(w, r, &req); err != nil {
		handleAPIError(w, r, err)
		return
	}

	spec, err := domain.NewSingleVideoSpec(req.VideoURL, req.AnalysisType, req.CustomPrompts)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}
	h.submit(w, r, p, spec)
}

// SubmitCompleteAccount handles POST /api/analysis/complete-account.
func (h *AnalysisHandler) SubmitCompleteAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := getPrincipal(w, r)
	if !ok {
		return
	}

	var req CompleteAccountRequest
	if err := h.decode(w, r, &req); err != nil {
		handleAPIError(w, r, err)
		return
	}

	spec, err := domain.NewAccountAnalysisSpec(req.AccountURL, req.AnalysisDepth, req.IncludeComments, req.MaxVideos)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}
	h.submit(w, r, p, spec)
}

func (h *AnalysisHandler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		return err
	}
	if err := shared.ValidateRequest(v); err != nil {
		return domain.NewValidationError("", "required fields are missing", nil)
	}
	return nil
}

func (h *AnalysisHandler) submit(w http.ResponseWriter, r *http.Request, p domain.Principal, spec domain.JobSpec) {
	sub, err := h.submitter.Submit(r.Context(), p.ID, spec)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("analysis task accepted",
		"task_id", sub.TaskID,
		"kind", spec.Kind(),
		"estimated_seconds", sub.EstimatedSeconds)

	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{
		TaskID:               sub.TaskID,
		Status:               string(sub.State),
		Message:              acceptedMessage,
		EstimatedTimeSeconds: sub.EstimatedSeconds,
	})
}

// GetStatus handles GET /api/analysis/status/{id}.
func (h *AnalysisHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := getPrincipal(w, r)
	if !ok {
		return
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	rec, err := h.queries.GetStatus(r.Context(), p, id)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toStatusResponse(rec))
}

// GetResult handles GET /api/analysis/result/{id}. Tasks that have not
// completed answer 409.
func (h *AnalysisHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	p, ok := getPrincipal(w, r)
	if !ok {
		return
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	rec, err := h.queries.GetResult(r.Context(), p, id)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	report, err := pipeline.DecodeReport(rec.Result)
	if err != nil {
		h.logger.Error("stored result is not a report", "task_id", rec.ID, redact.Attr(err))
		handleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskResultResponse{
		TaskID:       rec.ID,
		AnalysisType: string(rec.Kind),
		Results:      report.Results,
		Metadata:     report.Metadata,
		CreatedAt:    rec.CreatedAt,
		CompletedAt:  rec.CompletedAt,
	})
}

// ListHistory handles GET /api/analysis/history.
func (h *AnalysisHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := getPrincipal(w, r)
	if !ok {
		return
	}
	req, err := getPageRequest(r)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	page, err := h.queries.ListHistory(r.Context(), p, req)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toHistoryResponse(page, toStatusResponse))
}
