// Package pipeline contains the built-in analysis pipeline. It walks the fixed
// step sequence of each job kind, reporting progress as it goes, and produces a
// canned report. When a Summarizer is configured the report's summary text is
// generated by it instead.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/owl-api/internal/config"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/task"
)

// Step is one stage of an analysis and the overall progress reached when it begins.
type Step struct {
	Name     string
	Progress int
}

// Step sequences per job kind. Both end at 100.
var (
	SingleVideoSteps = []Step{
		{"downloading_video", 20},
		{"extracting_audio", 40},
		{"transcribing_speech", 60},
		{"analyzing_content", 80},
		{"generating_report", 100},
	}
	AccountSteps = []Step{
		{"fetching_profile", 10},
		{"listing_videos", 20},
		{"downloading_videos", 40},
		{"batch_analysis", 70},
		{"aggregating_results", 90},
		{"generating_report", 100},
	}
)

// MaxSampledVideos caps how many videos an account analysis reports as analyzed.
const MaxSampledVideos = 25

// Summarizer writes the summary paragraph of a report.
type Summarizer interface {
	Summarize(ctx context.Context, in SummaryInput) (string, error)
}

// SummaryInput describes the analyzed target to a Summarizer.
type SummaryInput struct {
	Kind            domain.JobKind
	Platform        domain.Platform
	TargetURL       string
	Mode            string
	CustomPrompts   []string
	IncludeComments bool
	Videos          int
}

// Config holds the delays between steps.
type Config struct {
	StepDelay        time.Duration
	AccountStepDelay time.Duration
}

// ConfigFrom converts application configuration.
func ConfigFrom(cfg config.PipelineConfig) Config {
	return Config{
		StepDelay:        time.Duration(cfg.StepDelayMS) * time.Millisecond,
		AccountStepDelay: time.Duration(cfg.AccountStepDelayMS) * time.Millisecond,
	}
}

// Option customises a Placeholder.
type Option func(*Placeholder)

// WithSummarizer makes reports use s for their summary text.
func WithSummarizer(s Summarizer) Option {
	return func(p *Placeholder) { p.summarizer = s }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Placeholder) { p.now = now }
}

// Placeholder is the built-in pipeline. It performs no media processing.
type Placeholder struct {
	cfg        Config
	summarizer Summarizer
	logger     *slog.Logger
	now        func() time.Time
}

var _ task.Pipeline = (*Placeholder)(nil)

// New creates a Placeholder pipeline.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Placeholder {
	p := &Placeholder{
		cfg:    cfg,
		logger: logger.With("component", "pipeline"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute implements task.Pipeline.
func (p *Placeholder) Execute(ctx context.Context, spec domain.JobSpec, progress task.ProgressFunc) (json.RawMessage, error) {
	run := &execution{p: p, ctx: ctx, progress: progress, started: p.now()}
	if err := spec.Accept(run); err != nil {
		return nil, err
	}
	return run.out, nil
}

// execution carries the state of one Execute call through the visitor.
type execution struct {
	p        *Placeholder
	ctx      context.Context
	progress task.ProgressFunc
	started  time.Time
	out      json.RawMessage
}

func (e *execution) VisitSingleVideo(s domain.SingleVideoSpec) error {
	if err := e.walk(SingleVideoSteps, e.p.cfg.StepDelay); err != nil {
		return err
	}

	res := cannedVideoResult(s)
	summary, err := e.summarize(SummaryInput{
		Kind:          s.Kind(),
		Platform:      s.Platform,
		TargetURL:     s.VideoURL,
		Mode:          s.AnalysisType,
		CustomPrompts: s.CustomPrompts,
		Videos:        1,
	})
	if err != nil {
		return err
	}
	if summary != "" {
		res.AnalysisSummary = summary
	}

	return e.finish(res, Metadata{AnalysisType: s.AnalysisType, VideosAnalyzed: 1})
}

func (e *execution) VisitAccountAnalysis(s domain.AccountAnalysisSpec) error {
	if err := e.walk(AccountSteps, e.p.cfg.AccountStepDelay); err != nil {
		return err
	}

	videos := min(s.MaxVideos, MaxSampledVideos)
	res := cannedAccountResult(s, videos)
	summary, err := e.summarize(SummaryInput{
		Kind:            s.Kind(),
		Platform:        s.Platform,
		TargetURL:       s.AccountURL,
		Mode:            s.AnalysisDepth,
		IncludeComments: s.IncludeComments,
		Videos:          videos,
	})
	if err != nil {
		return err
	}
	if summary != "" {
		res.AnalysisSummary = summary
	}

	return e.finish(res, Metadata{AnalysisDepth: s.AnalysisDepth, VideosAnalyzed: videos})
}

// walk reports each step and then waits delay, returning early on cancellation.
func (e *execution) walk(steps []Step, delay time.Duration) error {
	for _, st := range steps {
		if err := e.progress(st.Name, st.Progress); err != nil {
			return err
		}
		if err := sleep(e.ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (e *execution) summarize(in SummaryInput) (string, error) {
	if e.p.summarizer == nil {
		return "", nil
	}
	text, err := e.p.summarizer.Summarize(e.ctx, in)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return text, nil
}

func (e *execution) finish(results any, meta Metadata) error {
	meta.ProcessingSeconds = e.p.now().Sub(e.started).Seconds()
	meta.Summarizer = "placeholder"
	if e.p.summarizer != nil {
		meta.Summarizer = "llm"
	}
	out, err := json.Marshal(Report{Results: results, Metadata: meta})
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	e.out = out
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
