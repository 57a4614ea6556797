package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/events"
	"github.com/phrazzld/owl-api/internal/redact"
	"github.com/phrazzld/owl-api/internal/resource"
)

// ProgressFunc reports the step a pipeline is on and overall progress (0-100).
// A non-nil error tells the pipeline to stop.
type ProgressFunc func(step string, progress int) error

// Pipeline runs the analysis for one job. It must honour ctx cancellation and
// report progress through the supplied callback.
type Pipeline interface {
	Execute(ctx context.Context, spec domain.JobSpec, progress ProgressFunc) (json.RawMessage, error)
}

// ResourcePool is the part of the resource pool the orchestrator needs.
type ResourcePool interface {
	TryReserve(token uuid.UUID, count int, capability string) ([]string, error)
	Release(token uuid.UUID, ids []string) int
	ReleaseAll(token uuid.UUID) int
}

var _ ResourcePool = (*resource.Pool)(nil)

// User-facing failure messages. Internal detail goes to the log only.
const (
	msgExecutionFailed = "The analysis could not be completed."
	msgStepTimeout     = "An analysis step took too long and the task was stopped."
	msgCancelled       = "The task was cancelled before it finished."
	msgInterrupted     = "The service restarted before the task finished."
	msgInternal        = "The task stopped because of an internal error."
)

// persistTimeout bounds store writes made on behalf of a background unit. They
// use their own context so a cancelled task can still record how it ended.
const persistTimeout = 10 * time.Second

// A terminal write is attempted terminalAttempts times, doubling the pause
// between attempts, before the task's units are left held.
const (
	terminalAttempts    = 4
	defaultRetryBackoff = 100 * time.Millisecond
)

// Submission is returned to the caller when a job is admitted.
type Submission struct {
	TaskID           uuid.UUID
	State            State
	EstimatedSeconds int
	ReservedUnits    []string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithEmitter publishes lifecycle events to e.
func WithEmitter(e events.EventEmitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// Orchestrator admits jobs and supervises one background unit per active task.
type Orchestrator struct {
	store    Store
	pool     ResourcePool
	pipeline Pipeline
	emitter  events.EventEmitter
	policy   Policy
	logger   *slog.Logger
	now      func() time.Time

	// retryBackoff is the first pause between terminal write attempts.
	retryBackoff time.Duration

	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator. Call Start before serving traffic.
func NewOrchestrator(
	store Store,
	pool ResourcePool,
	pipeline Pipeline,
	policy Policy,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:        store,
		pool:         pool,
		pipeline:     pipeline,
		policy:       policy,
		logger:       logger.With("component", "orchestrator"),
		now:          time.Now,
		retryBackoff: defaultRetryBackoff,
		baseCtx:      ctx,
		cancelAll:    cancel,
		running:      make(map[uuid.UUID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start reconciles records left unfinished by a previous process.
func (o *Orchestrator) Start(ctx context.Context) error {
	n, err := o.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile tasks: %w", err)
	}
	o.logger.Info("orchestrator started", "reconciled", n)
	return nil
}

// Stop refuses new submissions, cancels every running unit and waits for them
// to record their outcome and release their units.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	active := len(o.running)
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator", "active", active)
	o.cancelAll()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

// Active returns the number of running background units.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// Submit validates spec, reserves units for it and schedules its execution.
// It returns as soon as the pending record exists. When the pool cannot satisfy
// the demand it fails with resource.ErrInsufficientResources and leaves no
// record behind.
func (o *Orchestrator) Submit(ctx context.Context, ownerID string, spec domain.JobSpec) (*Submission, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if spec == nil {
		return nil, domain.NewValidationError("spec", "is required", nil)
	}
	kind := string(spec.Kind())
	spec, err := domain.Normalize(spec)
	if err != nil {
		tasksRejected.WithLabelValues(kind, "invalid").Inc()
		return nil, err
	}
	units, estimate, err := o.policy.Plan(spec)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	runCtx, cancel := context.WithCancel(o.baseCtx)
	if !o.register(id, cancel) {
		cancel()
		tasksRejected.WithLabelValues(kind, "shutting_down").Inc()
		return nil, ErrShuttingDown
	}
	launched := false
	defer func() {
		if !launched {
			o.unregister(id)
			cancel()
		}
	}()

	log := o.logger.With("task_id", id, "kind", kind, "owner_id", ownerID)

	reserved, err := o.pool.TryReserve(id, units, o.policy.Capability)
	if err != nil {
		reason := "reserve_error"
		if errors.Is(err, resource.ErrInsufficientResources) {
			reason = "insufficient_resources"
		}
		tasksRejected.WithLabelValues(kind, reason).Inc()
		log.Info("submission rejected", "reason", reason, "units", units)
		return nil, err
	}

	rec := NewRecord(id, ownerID, spec, reserved, estimate, o.now())
	if err := o.store.Insert(ctx, rec); err != nil {
		o.pool.Release(id, reserved)
		log.Error("failed to save task", redact.Attr(err))
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	tasksSubmitted.WithLabelValues(kind).Inc()
	log.Info("task submitted", "reserved_units", reserved, "estimated_seconds", estimate)
	o.emit(events.TaskSubmitted, rec, map[string]any{"reserved_units": reserved})

	launched = true
	go o.run(runCtx, cancel, rec.Clone())

	return &Submission{
		TaskID:           id,
		State:            rec.State,
		EstimatedSeconds: estimate,
		ReservedUnits:    reserved,
	}, nil
}

// register tracks a unit about to run. It fails once Stop has been called.
func (o *Orchestrator) register(id uuid.UUID, cancel context.CancelFunc) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.running[id] = cancel
	o.wg.Add(1)
	return true
}

func (o *Orchestrator) unregister(id uuid.UUID) {
	o.mu.Lock()
	delete(o.running, id)
	o.mu.Unlock()
	o.wg.Done()
}

// run is the background unit for one task. Units go back to the pool only
// after the store no longer lists them: complete and fail release after their
// terminal write, and the deferred settle covers panics and early exits.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, rec *Record) {
	log := o.logger.With("task_id", rec.ID, "kind", rec.Kind, "owner_id", rec.OwnerID)
	tasksActive.Inc()

	defer func() {
		cancel()
		tasksActive.Dec()
		o.unregister(rec.ID)
	}()
	released := false
	defer func() {
		if !released {
			o.settle(rec, log)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked",
				"panic", redact.String(fmt.Sprint(r)),
				"stack", redact.String(string(debug.Stack())))
			released = o.fail(rec, Failure{Code: FailureInternal, Message: msgInternal}, log)
		}
	}()

	started, err := o.persist(rec.ID, func(r *Record) error { return r.Start(o.now()) })
	if err != nil {
		o.logPersistError(log, "start", err)
		released = o.fail(rec, Failure{Code: FailureInternal, Message: msgInternal}, log)
		return
	}
	log.Info("task started")
	o.emit(events.TaskStarted, started, nil)

	wd := newWatchdog(o.policy.StepTimeout, cancel)
	defer wd.stop()

	progress := func(step string, pct int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		wd.reset()
		if _, err := o.persist(rec.ID, func(r *Record) error { return r.Advance(step, pct) }); err != nil {
			o.logPersistError(log, "advance", err)
			return err
		}
		log.Debug("task progress", "step", step, "progress", pct)
		return nil
	}

	result, execErr := o.pipeline.Execute(ctx, rec.Spec, progress)
	switch {
	case execErr == nil:
		released = o.complete(rec, result, log)
	case wd.fired():
		log.Warn("task step timed out", "timeout", o.policy.StepTimeout, redact.Attr(execErr))
		released = o.fail(rec, Failure{Code: FailureStepTimeout, Message: msgStepTimeout}, log)
	case ctx.Err() != nil:
		log.Info("task cancelled", redact.Attr(execErr))
		released = o.fail(rec, Failure{Code: FailureCancelled, Message: msgCancelled}, log)
	default:
		log.Error("task execution failed", redact.Attr(execErr))
		released = o.fail(rec, Failure{Code: FailureExecution, Message: msgExecutionFailed}, log)
	}
}

// release returns the task's units to the pool. Repeated calls are no-ops.
func (o *Orchestrator) release(rec *Record, log *slog.Logger) {
	if n := o.pool.Release(rec.ID, rec.ReservedUnits); n > 0 {
		log.Debug("released units", "count", n)
	}
}

// settle releases the units of a task that did not record its outcome, but
// only once the stored record no longer lists them. Otherwise they stay held
// until the record is reconciled or purged.
func (o *Orchestrator) settle(rec *Record, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	cur, err := o.store.Get(ctx, rec.ID)
	switch {
	case errors.Is(err, ErrTaskNotFound):
	case err != nil:
		log.Error("keeping task units: record unreadable", "units", rec.ReservedUnits, redact.Attr(err))
		return
	case len(cur.ReservedUnits) > 0:
		log.Error("keeping task units until reconciliation", "state", cur.State, "units", cur.ReservedUnits)
		return
	}
	o.release(rec, log)
}

// complete records the result and then releases the units. It reports whether
// the units were released.
func (o *Orchestrator) complete(rec *Record, result json.RawMessage, log *slog.Logger) bool {
	done, err := o.persistTerminal(rec.ID, "complete", log, func(r *Record) error {
		return r.Complete(result, o.now())
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return o.fail(rec, Failure{Code: FailureInternal, Message: msgInternal}, log)
		}
		return o.releaseIfGone(rec, err, log)
	}
	o.release(rec, log)
	o.observeFinished(done)
	log.Info("task completed")
	o.emit(events.TaskCompleted, done, nil)
	return true
}

// fail records the failure and then releases the units. A task that never got
// past pending is started first. It reports whether the units were released.
func (o *Orchestrator) fail(rec *Record, f Failure, log *slog.Logger) bool {
	done, err := o.persistTerminal(rec.ID, "fail", log, func(r *Record) error {
		return abandon(r, f, o.now())
	})
	if err != nil {
		return o.releaseIfGone(rec, err, log)
	}
	o.release(rec, log)
	o.observeFinished(done)
	log.Info("task failed", "code", f.Code)
	o.emit(events.TaskFailed, done, f)
	return true
}

// releaseIfGone releases the units when the terminal write failed because the
// record was purged. Any other failure leaves them held.
func (o *Orchestrator) releaseIfGone(rec *Record, err error, log *slog.Logger) bool {
	if !errors.Is(err, ErrTaskNotFound) {
		return false
	}
	o.release(rec, log)
	return true
}

// abandon moves an unfinished record to failed.
func abandon(r *Record, f Failure, now time.Time) error {
	if r.State == StatePending {
		if err := r.Start(now); err != nil {
			return err
		}
	}
	return r.Fail(f, now)
}

// persistTerminal writes a terminal transition, retrying store errors with
// exponential backoff. A missing record or a rejected transition is final.
func (o *Orchestrator) persistTerminal(id uuid.UUID, op string, log *slog.Logger, fn func(*Record) error) (*Record, error) {
	delay := o.retryBackoff
	for attempt := 1; ; attempt++ {
		rec, err := o.persist(id, fn)
		if err == nil {
			return rec, nil
		}
		if attempt == terminalAttempts || errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrInvalidTransition) {
			o.logPersistError(log, op, err)
			return nil, err
		}
		log.Warn("retrying task update", "op", op, "attempt", attempt, "delay", delay, redact.Attr(err))
		time.Sleep(delay)
		delay *= 2
	}
}

func (o *Orchestrator) persist(id uuid.UUID, fn func(*Record) error) (*Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return o.store.Update(ctx, id, fn)
}

func (o *Orchestrator) logPersistError(log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		log.Info("task record removed while running", "op", op)
	case errors.Is(err, ErrInvalidTransition):
		log.Error("task invariant violation", "op", op, redact.Attr(err))
	case errors.Is(err, context.Canceled):
		log.Debug("task update skipped after cancellation", "op", op)
	default:
		log.Error("failed to update task", "op", op, redact.Attr(err))
	}
}

func (o *Orchestrator) observeFinished(r *Record) {
	code := ""
	if r.Failure != nil {
		code = r.Failure.Code
	}
	tasksFinished.WithLabelValues(string(r.Kind), string(r.State), code).Inc()
	if r.StartedAt != nil && r.CompletedAt != nil {
		taskDuration.WithLabelValues(string(r.Kind), string(r.State)).
			Observe(r.CompletedAt.Sub(*r.StartedAt).Seconds())
	}
}

func (o *Orchestrator) emit(t events.Type, r *Record, detail any) {
	if o.emitter == nil {
		return
	}
	ev, err := events.NewTaskEvent(t, r.ID, r.OwnerID, string(r.Kind), string(r.State), detail)
	if err != nil {
		o.logger.Warn("failed to build task event", "event_type", t, "task_id", r.ID, redact.Attr(err))
		return
	}
	if err := o.emitter.EmitEvent(context.Background(), ev); err != nil {
		o.logger.Warn("task event not delivered", "event_type", t, "task_id", r.ID, redact.Attr(err))
	}
}

// Purge removes a task record. While the store holds the record exclusively,
// a running unit is cancelled and the task's units are returned to the pool.
func (o *Orchestrator) Purge(ctx context.Context, id uuid.UUID) (*Record, error) {
	var (
		live  bool
		freed int
	)
	rec, err := o.store.Delete(ctx, id, func(*Record) {
		o.mu.Lock()
		cancel, ok := o.running[id]
		o.mu.Unlock()
		if ok {
			live = true
			cancel()
		}
		freed = o.pool.ReleaseAll(id)
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("task purged", "task_id", id, "owner_id", rec.OwnerID, "state", rec.State,
		"was_running", live, "released_units", freed)
	o.emit(events.TaskPurged, rec, map[string]any{"released_units": freed})
	return rec, nil
}

// Reconcile fails every unfinished record that has no live background unit,
// which after a restart means every unfinished record, and releases its units.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	recs, err := o.store.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range recs {
		o.mu.Lock()
		_, live := o.running[rec.ID]
		o.mu.Unlock()
		if live {
			continue
		}

		log := o.logger.With("task_id", rec.ID, "kind", rec.Kind, "owner_id", rec.OwnerID)
		failed, err := o.store.Update(ctx, rec.ID, func(r *Record) error {
			return abandon(r, Failure{Code: FailureInterrupted, Message: msgInterrupted}, o.now())
		})
		if err != nil {
			o.logPersistError(log, "reconcile", err)
			continue
		}
		o.pool.Release(rec.ID, rec.ReservedUnits)
		o.observeFinished(failed)
		log.Warn("reconciled interrupted task", "previous_state", rec.State)
		o.emit(events.TaskReconciled, failed, map[string]any{"previous_state": rec.State})
		n++
	}
	return n, nil
}

// Sweep deletes terminal records older than the retention period. It does
// nothing when retention is disabled.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	if o.policy.Retention <= 0 {
		return 0, nil
	}
	cutoff := o.now().Add(-o.policy.Retention)
	n, err := o.store.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep tasks: %w", err)
	}
	if n > 0 {
		o.logger.Info("swept expired tasks", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// watchdog cancels a task when no progress is reported within d.
type watchdog struct {
	d       time.Duration
	timer   *time.Timer
	tripped atomic.Bool
}

func newWatchdog(d time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{d: d}
	if d > 0 {
		w.timer = time.AfterFunc(d, func() {
			w.tripped.Store(true)
			cancel()
		})
	}
	return w
}

func (w *watchdog) reset() {
	if w.timer != nil {
		w.timer.Reset(w.d)
	}
}

func (w *watchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *watchdog) fired() bool { return w.tripped.Load() }
