package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle transition.
type Type string

// Lifecycle event types.
const (
	TaskSubmitted  Type = "task.submitted"
	TaskStarted    Type = "task.started"
	TaskCompleted  Type = "task.completed"
	TaskFailed     Type = "task.failed"
	TaskPurged     Type = "task.purged"
	TaskReconciled Type = "task.reconciled"
)

// TaskEvent describes one lifecycle transition of a task.
type TaskEvent struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"type"`
	TaskID     uuid.UUID       `json:"task_id"`
	OwnerID    string          `json:"owner_id"`
	Kind       string          `json:"kind"`
	State      string          `json:"state"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewTaskEvent creates a TaskEvent. detail, if non-nil, is serialized to JSON.
func NewTaskEvent(eventType Type, taskID uuid.UUID, ownerID, kind, state string, detail any) (*TaskEvent, error) {
	var raw json.RawMessage
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &TaskEvent{
		ID:         uuid.New(),
		Type:       eventType,
		TaskID:     taskID,
		OwnerID:    ownerID,
		Kind:       kind,
		State:      state,
		Detail:     raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// UnmarshalDetail decodes the event detail into v.
func (e *TaskEvent) UnmarshalDetail(v any) error {
	return json.Unmarshal(e.Detail, v)
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}
