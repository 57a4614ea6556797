package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/domain"
)

// State represents the current state of a task
type State string

// Possible task states
const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ParseState converts a raw string into a known State.
func ParseState(raw string) (State, error) {
	switch s := State(raw); s {
	case StatePending, StateProcessing, StateCompleted, StateFailed:
		return s, nil
	default:
		return "", domain.NewValidationError("state", "must be one of: pending, processing, completed, failed", nil)
	}
}

// Failure codes recorded on failed tasks.
const (
	FailureExecution   = "execution_failed"
	FailureStepTimeout = "step_timeout"
	FailureCancelled   = "cancelled"
	FailureInterrupted = "interrupted"
	FailureInternal    = "internal_error"
)

// Failure is the user-visible reason a task failed. Message never carries
// internal error detail.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common task errors
var (
	// ErrTaskNotFound is returned when a task id does not exist in the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask is returned when inserting a task id that already exists.
	ErrDuplicateTask = errors.New("task already exists")

	// ErrForbidden is returned when a principal reads a task it does not own.
	ErrForbidden = errors.New("access to task forbidden")

	// ErrNotReady is returned when a result is requested before the task completed.
	ErrNotReady = errors.New("task result not ready")

	// ErrInvalidTransition is returned when a mutation would break the task
	// lifecycle. The record is left unchanged.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrShuttingDown is returned when a submission arrives after Stop.
	ErrShuttingDown = errors.New("task orchestrator is shutting down")
)

// Record is the durable state of one analysis task.
type Record struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          string          `json:"owner_id"`
	Kind             domain.JobKind  `json:"kind"`
	State            State           `json:"state"`
	Progress         int             `json:"progress"`
	CurrentStep      string          `json:"current_step"`
	ReservedUnits    []string        `json:"reserved_units,omitempty"`
	Spec             domain.JobSpec  `json:"spec"`
	Result           json.RawMessage `json:"result,omitempty"`
	Failure          *Failure        `json:"failure,omitempty"`
	EstimatedSeconds int             `json:"estimated_seconds"`
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`

	// Seq is assigned by the store on insert and increases monotonically. It is
	// used to pin pagination to a snapshot.
	Seq uint64 `json:"-"`
}

// NewRecord creates a pending record holding the given units.
func NewRecord(id uuid.UUID, ownerID string, spec domain.JobSpec, units []string, estimate int, now time.Time) *Record {
	return &Record{
		ID:               id,
		OwnerID:          ownerID,
		Kind:             spec.Kind(),
		State:            StatePending,
		CurrentStep:      "queued",
		ReservedUnits:    append([]string(nil), units...),
		Spec:             spec,
		EstimatedSeconds: estimate,
		CreatedAt:        now.UTC(),
	}
}

func transitionError(r *Record, to State) error {
	return fmt.Errorf("%w: %s -> %s for task %s", ErrInvalidTransition, r.State, to, r.ID)
}

// Start moves a pending task to processing.
func (r *Record) Start(now time.Time) error {
	if r.State != StatePending {
		return transitionError(r, StateProcessing)
	}
	t := now.UTC()
	r.State = StateProcessing
	r.StartedAt = &t
	r.CurrentStep = "started"
	return nil
}

// Advance records progress on a processing task. Progress may not decrease or
// exceed 100.
func (r *Record) Advance(step string, progress int) error {
	if r.State != StateProcessing {
		return transitionError(r, StateProcessing)
	}
	if progress < r.Progress || progress > 100 {
		return fmt.Errorf("%w: progress %d -> %d for task %s", ErrInvalidTransition, r.Progress, progress, r.ID)
	}
	r.Progress = progress
	r.CurrentStep = step
	return nil
}

// Complete stores the result and clears the reservation.
func (r *Record) Complete(result json.RawMessage, now time.Time) error {
	if r.State != StateProcessing {
		return transitionError(r, StateCompleted)
	}
	if len(result) == 0 {
		return fmt.Errorf("%w: empty result for task %s", ErrInvalidTransition, r.ID)
	}
	t := now.UTC()
	r.State = StateCompleted
	r.Progress = 100
	r.CurrentStep = "completed"
	r.Result = append(json.RawMessage(nil), result...)
	r.ReservedUnits = nil
	r.CompletedAt = &t
	return nil
}

// Fail stores the failure and clears the reservation. Progress is kept as the
// last reported value.
func (r *Record) Fail(f Failure, now time.Time) error {
	if r.State != StateProcessing {
		return transitionError(r, StateFailed)
	}
	t := now.UTC()
	r.State = StateFailed
	r.CurrentStep = "failed"
	r.Failure = &f
	r.ReservedUnits = nil
	r.CompletedAt = &t
	return nil
}

// EstimatedRemainingSeconds scales the estimate by the unfinished fraction.
func (r *Record) EstimatedRemainingSeconds() int {
	if r.State.Terminal() {
		return 0
	}
	return r.EstimatedSeconds * (100 - r.Progress) / 100
}

// CheckInvariants verifies the structural rules every stored record obeys.
func (r *Record) CheckInvariants() error {
	switch {
	case r.Progress < 0 || r.Progress > 100:
		return fmt.Errorf("progress %d out of range", r.Progress)
	case r.State.Terminal() && len(r.ReservedUnits) > 0:
		return fmt.Errorf("terminal task holds %d units", len(r.ReservedUnits))
	case r.State.Terminal() && r.CompletedAt == nil:
		return errors.New("terminal task without completed_at")
	case r.State == StateCompleted && (r.Result == nil || r.Failure != nil):
		return errors.New("completed task must carry a result and no failure")
	case r.State == StateFailed && (r.Failure == nil || r.Result != nil):
		return errors.New("failed task must carry a failure and no result")
	case !r.State.Terminal() && (r.Result != nil || r.Failure != nil):
		return errors.New("unfinished task carries an outcome")
	case r.State == StatePending && r.StartedAt != nil:
		return errors.New("pending task has started_at")
	}
	return nil
}

// Clone returns a deep copy. The spec is a value type and is shared.
func (r *Record) Clone() *Record {
	c := *r
	c.ReservedUnits = append([]string(nil), r.ReservedUnits...)
	if r.Result != nil {
		c.Result = append(json.RawMessage(nil), r.Result...)
	}
	if r.Failure != nil {
		f := *r.Failure
		c.Failure = &f
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
