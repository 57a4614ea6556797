package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []*TaskEvent
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, e *TaskEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return h.err
}

func TestInMemoryEventEmitter(t *testing.T) {
	t.Parallel()

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	newEvent := func(t *testing.T) *TaskEvent {
		t.Helper()
		e, err := NewTaskEvent(TaskSubmitted, uuid.New(), "u-1", "single_video", "pending",
			map[string]any{"reserved_units": []string{"gpu-0"}})
		require.NoError(t, err)
		return e
	}

	t.Run("no handlers", func(t *testing.T) {
		t.Parallel()
		emitter := NewInMemoryEventEmitter(discard)
		assert.NoError(t, emitter.EmitEvent(context.Background(), newEvent(t)))
	})

	t.Run("every handler receives the event", func(t *testing.T) {
		t.Parallel()
		emitter := NewInMemoryEventEmitter(discard)
		h1, h2 := &recordingHandler{}, &recordingHandler{}
		emitter.RegisterHandler(h1)
		emitter.RegisterHandler(h2)

		e := newEvent(t)
		require.NoError(t, emitter.EmitEvent(context.Background(), e))
		assert.Equal(t, []*TaskEvent{e}, h1.events)
		assert.Equal(t, []*TaskEvent{e}, h2.events)
	})

	t.Run("failing handler does not stop delivery", func(t *testing.T) {
		t.Parallel()
		emitter := NewInMemoryEventEmitter(discard)
		failing := &recordingHandler{err: errors.New("handler error")}
		ok := &recordingHandler{}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(ok)

		err := emitter.EmitEvent(context.Background(), newEvent(t))
		assert.EqualError(t, err, "handler error")
		assert.Len(t, ok.events, 1)
	})

	t.Run("handler func adapter", func(t *testing.T) {
		t.Parallel()
		emitter := NewInMemoryEventEmitter(discard)
		var got Type
		emitter.RegisterHandler(HandlerFunc(func(_ context.Context, e *TaskEvent) error {
			got = e.Type
			return nil
		}))
		require.NoError(t, emitter.EmitEvent(context.Background(), newEvent(t)))
		assert.Equal(t, TaskSubmitted, got)
	})
}

func TestNewTaskEventDetail(t *testing.T) {
	t.Parallel()

	e, err := NewTaskEvent(TaskFailed, uuid.New(), "u-1", "account_analysis", "failed",
		map[string]string{"code": "step_timeout"})
	require.NoError(t, err)

	var detail map[string]string
	require.NoError(t, e.UnmarshalDetail(&detail))
	assert.Equal(t, "step_timeout", detail["code"])
	assert.False(t, e.OccurredAt.IsZero())

	_, err = NewTaskEvent(TaskFailed, uuid.New(), "u-1", "x", "failed", make(chan int))
	assert.Error(t, err)
}

func TestAuditLogHandler(t *testing.T) {
	t.Parallel()

	l, buf := logger.NewTestLogger(t)
	h := NewAuditLogHandler(l)

	taskID := uuid.New()
	e, err := NewTaskEvent(TaskCompleted, taskID, "u-9", "single_video", "completed", nil)
	require.NoError(t, err)
	require.NoError(t, h.HandleEvent(context.Background(), e))

	entries := buf.Find("task lifecycle")
	require.Len(t, entries, 1)
	assert.Equal(t, "task.completed", entries[0]["event_type"])
	assert.Equal(t, taskID.String(), entries[0]["task_id"])
	assert.Equal(t, "audit", entries[0]["component"])
	assert.NotContains(t, entries[0], "detail")
}
