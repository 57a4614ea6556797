package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/pipeline"
	"github.com/phrazzld/owl-api/internal/resource"
	"github.com/phrazzld/owl-api/internal/task"
)

// SingleVideoRequest is the payload for POST /api/analysis/single-video.
type SingleVideoRequest struct {
	VideoURL      string   `json:"video_url" validate:"required"`
	AnalysisType  string   `json:"analysis_type,omitempty"`
	CustomPrompts []string `json:"custom_prompts,omitempty"`
}

// CompleteAccountRequest is the payload for POST /api/analysis/complete-account.
type CompleteAccountRequest struct {
	AccountURL      string `json:"account_url" validate:"required"`
	AnalysisDepth   string `json:"analysis_depth,omitempty"`
	IncludeComments bool   `json:"include_comments"`
	MaxVideos       int    `json:"max_videos,omitempty"`
}

// TaskAcceptedResponse is returned with 202 when a job is admitted.
type TaskAcceptedResponse struct {
	TaskID               uuid.UUID `json:"task_id"`
	Status               string    `json:"status"`
	Message              string    `json:"message"`
	EstimatedTimeSeconds int       `json:"estimated_time_seconds"`
}

// TaskStatusResponse reports a task's lifecycle position.
type TaskStatusResponse struct {
	TaskID                    uuid.UUID  `json:"task_id"`
	Kind                      string     `json:"kind"`
	Status                    string     `json:"status"`
	Progress                  int        `json:"progress"`
	CurrentStep               string     `json:"current_step"`
	EstimatedRemainingSeconds *int       `json:"estimated_remaining_seconds,omitempty"`
	Error                     string     `json:"error,omitempty"`
	ErrorCode                 string     `json:"error_code,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	StartedAt                 *time.Time `json:"started_at,omitempty"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
}

// AdminTaskResponse adds ownership and reservation detail to a status.
type AdminTaskResponse struct {
	TaskStatusResponse
	OwnerID       string   `json:"owner_id"`
	ReservedUnits []string `json:"reserved_units,omitempty"`
}

// TaskResultResponse is the analysis result of a completed task.
type TaskResultResponse struct {
	TaskID       uuid.UUID         `json:"task_id"`
	AnalysisType string            `json:"analysis_type"`
	Results      json.RawMessage   `json:"results"`
	Metadata     pipeline.Metadata `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at"`
}

// HistoryResponse is one page of a task listing. Pass Snapshot back with the
// next page to keep pages stable while new tasks arrive.
type HistoryResponse[T any] struct {
	Tasks    []T    `json:"tasks"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	HasMore  bool   `json:"has_more"`
	Snapshot uint64 `json:"snapshot"`
}

// ResourcesResponse lists the resource pool.
type ResourcesResponse struct {
	Units     []resource.UnitState `json:"units"`
	Total     int                  `json:"total"`
	Available int                  `json:"available"`
	Online    int                  `json:"online"`
}

// PrincipalResponse describes the caller.
type PrincipalResponse struct {
	ID      string      `json:"id"`
	Email   string      `json:"email,omitempty"`
	Role    domain.Role `json:"role"`
	IsAdmin bool        `json:"is_admin"`
}

func toStatusResponse(r *task.Record) TaskStatusResponse {
	out := TaskStatusResponse{
		TaskID:      r.ID,
		Kind:        string(r.Kind),
		Status:      string(r.State),
		Progress:    r.Progress,
		CurrentStep: r.CurrentStep,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
	if !r.State.Terminal() {
		remaining := r.EstimatedRemainingSeconds()
		out.EstimatedRemainingSeconds = &remaining
	}
	if r.Failure != nil {
		out.Error = r.Failure.Message
		out.ErrorCode = r.Failure.Code
	}
	return out
}

func toAdminTaskResponse(r *task.Record) AdminTaskResponse {
	return AdminTaskResponse{
		TaskStatusResponse: toStatusResponse(r),
		OwnerID:            r.OwnerID,
		ReservedUnits:      r.ReservedUnits,
	}
}

func toHistoryResponse[T any](p *task.Page, convert func(*task.Record) T) HistoryResponse[T] {
	tasks := make([]T, 0, len(p.Records))
	for _, r := range p.Records {
		tasks = append(tasks, convert(r))
	}
	return HistoryResponse[T]{
		Tasks:    tasks,
		Total:    p.Total,
		Page:     p.Page,
		PageSize: p.PageSize,
		HasMore:  p.HasMore,
		Snapshot: p.Snapshot,
	}
}

func toResourcesResponse(units []resource.UnitState) ResourcesResponse {
	out := ResourcesResponse{Units: units, Total: len(units)}
	for _, u := range units {
		if u.Online {
			out.Online++
		}
		if u.Online && u.Available {
			out.Available++
		}
	}
	return out
}
