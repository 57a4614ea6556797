package events

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/phrazzld/owl-api/internal/redact"
)

// InMemoryEventEmitter delivers events synchronously to registered handlers in
// registration order. Delivery is at most once and nothing is persisted.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{logger: logger.With("component", "event_emitter")}
}

// RegisterHandler subscribes handler to every later event.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	n := len(e.handlers)
	e.mu.Unlock()
	e.logger.Debug("registered event handler", "handler_count", n)
}

// EmitEvent hands event to every handler. A failing handler does not stop
// delivery to the rest; all failures are returned joined.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	e.mu.RLock()
	handlers := slices.Clone(e.handlers)
	e.mu.RUnlock()

	var errs []error
	for i, h := range handlers {
		err := h.HandleEvent(ctx, event)
		if err == nil {
			continue
		}
		e.logger.Error("handler failed to process event",
			"handler_index", i,
			"event_type", event.Type,
			"task_id", event.TaskID,
			redact.Attr(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AuditLogHandler writes every lifecycle event to the log.
type AuditLogHandler struct {
	logger *slog.Logger
}

// NewAuditLogHandler returns a handler that logs events at info level.
func NewAuditLogHandler(logger *slog.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: logger.With("component", "audit")}
}

// HandleEvent implements EventHandler.
func (h *AuditLogHandler) HandleEvent(ctx context.Context, event *TaskEvent) error {
	attrs := []any{
		"event_id", event.ID,
		"event_type", event.Type,
		"task_id", event.TaskID,
		"owner_id", event.OwnerID,
		"kind", event.Kind,
		"state", event.State,
	}
	if len(event.Detail) > 0 {
		attrs = append(attrs, "detail", string(event.Detail))
	}
	h.logger.InfoContext(ctx, "task lifecycle", attrs...)
	return nil
}
