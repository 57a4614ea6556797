package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/domain"
)

// Paging limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects one page of a listing. Snapshot pins the listing to the
// records that existed when the first page was read; zero means "now".
type PageRequest struct {
	Page     int
	PageSize int
	Snapshot uint64
}

func (p PageRequest) validate() error {
	if p.Page < 1 {
		return domain.NewValidationError("page", "must be at least 1", nil)
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return domain.NewValidationError("page_size", fmt.Sprintf("must be between 1 and %d", MaxPageSize), nil)
	}
	return nil
}

// Page is one page of task records.
type Page struct {
	Records  []*Record
	Total    int
	Page     int
	PageSize int
	HasMore  bool
	Snapshot uint64
}

// AdminFilter narrows the administrative listing.
type AdminFilter struct {
	States  []State
	OwnerID string
}

// Purger removes tasks. Implemented by *Orchestrator.
type Purger interface {
	Purge(ctx context.Context, id uuid.UUID) (*Record, error)
}

// QueryService answers status, result and history requests. It reads the store
// only and never waits on execution.
type QueryService struct {
	store  Store
	purger Purger
}

// NewQueryService creates a QueryService.
func NewQueryService(store Store, purger Purger) *QueryService {
	return &QueryService{store: store, purger: purger}
}

func (q *QueryService) authorized(ctx context.Context, p domain.Principal, id uuid.UUID) (*Record, error) {
	if p.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	rec, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(rec.OwnerID) {
		return nil, ErrForbidden
	}
	return rec, nil
}

// GetStatus returns the task if p owns it or is an admin.
func (q *QueryService) GetStatus(ctx context.Context, p domain.Principal, id uuid.UUID) (*Record, error) {
	return q.authorized(ctx, p, id)
}

// GetResult returns a completed task. Unfinished and failed tasks yield
// ErrNotReady; the record is returned alongside so callers can report state.
func (q *QueryService) GetResult(ctx context.Context, p domain.Principal, id uuid.UUID) (*Record, error) {
	rec, err := q.authorized(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if rec.State != StateCompleted {
		return rec, fmt.Errorf("%w: task is %s", ErrNotReady, rec.State)
	}
	return rec, nil
}

// ListHistory returns the caller's own tasks, newest first.
func (q *QueryService) ListHistory(ctx context.Context, p domain.Principal, req PageRequest) (*Page, error) {
	if p.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	return q.list(ctx, ListFilter{OwnerID: p.ID}, req)
}

// ListAll returns every task matching filter. Only admins may call it.
func (q *QueryService) ListAll(ctx context.Context, p domain.Principal, filter AdminFilter, req PageRequest) (*Page, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	return q.list(ctx, ListFilter{OwnerID: filter.OwnerID, States: filter.States}, req)
}

// Delete purges a task. Only admins may call it.
func (q *QueryService) Delete(ctx context.Context, p domain.Principal, id uuid.UUID) (*Record, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	return q.purger.Purge(ctx, id)
}

func (q *QueryService) list(ctx context.Context, filter ListFilter, req PageRequest) (*Page, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	snapshot := req.Snapshot
	if snapshot == 0 {
		latest, err := q.store.LatestSeq(ctx)
		if err != nil {
			return nil, err
		}
		snapshot = latest
	}

	filter.MaxSeq = snapshot
	filter.Offset = (req.Page - 1) * req.PageSize
	filter.Limit = req.PageSize

	recs, total, err := q.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{
		Records:  recs,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		HasMore:  filter.Offset+len(recs) < total,
		Snapshot: snapshot,
	}, nil
}
