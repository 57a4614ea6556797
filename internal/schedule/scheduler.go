// Package schedule runs the periodic maintenance jobs: inventory refresh and
// the retention sweep.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/owl-api/internal/redact"
	"github.com/robfig/cron/v3"
)

// JobFunc is one run of a periodic job.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a cron runner. Jobs share a context that is cancelled by
// Stop, and an overlapping run is skipped rather than queued.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	names  map[cron.EntryID]string
}

// New creates a stopped Scheduler.
func New(logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(
				cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
			)),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		names:  make(map[cron.EntryID]string),
	}
}

// Add registers fn under name. An empty spec leaves the job disabled. Specs use
// five-field cron syntax or descriptors such as "@every 1m".
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if spec == "" {
		s.logger.Info("periodic job disabled", "job", name)
		return nil
	}

	log := s.logger.With("job", name)
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := fn(s.ctx); err != nil {
			log.Error("periodic job failed", "duration", time.Since(start), redact.Attr(err))
			return
		}
		log.Debug("periodic job finished", "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.names[id] = name
	log.Info("periodic job scheduled", "schedule", spec)
	return nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	entries := s.cron.Entries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.names[e.ID])
	}
	return out
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, redact.Attr(err))...)
}
