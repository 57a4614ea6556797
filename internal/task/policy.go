package task

import (
	"math"
	"time"

	"github.com/phrazzld/owl-api/internal/config"
	"github.com/phrazzld/owl-api/internal/domain"
)

// Policy holds the admission and estimation rules for each job kind.
type Policy struct {
	// Capability is the unit capability every job reserves.
	Capability           string
	SingleVideoUnits     int
	AccountAnalysisUnits int

	// StepTimeout fails a task when the pipeline reports no progress for this
	// long. Zero disables the watchdog.
	StepTimeout time.Duration

	// Retention is how long terminal tasks are kept. Zero keeps them forever.
	Retention time.Duration

	SingleVideoSeconds int
	PerVideoSeconds    int
	DepthMultipliers   map[string]float64
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Capability:           "gpu",
		SingleVideoUnits:     1,
		AccountAnalysisUnits: 2,
		SingleVideoSeconds:   300,
		PerVideoSeconds:      30,
		DepthMultipliers: map[string]float64{
			domain.DepthBasic:         0.5,
			domain.DepthStandard:      1.0,
			domain.DepthComprehensive: 1.5,
		},
	}
}

// PolicyFromConfig builds a Policy from loaded configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		Capability:           cfg.Resources.Capability,
		SingleVideoUnits:     cfg.Task.SingleVideoUnits,
		AccountAnalysisUnits: cfg.Task.AccountAnalysisUnits,
		StepTimeout:          cfg.Task.StepTimeout(),
		Retention:            cfg.Task.Retention(),
		SingleVideoSeconds:   cfg.Estimate.SingleVideoSeconds,
		PerVideoSeconds:      cfg.Estimate.PerVideoSeconds,
		DepthMultipliers: map[string]float64{
			domain.DepthBasic:         cfg.Estimate.DepthMultipliers.Basic,
			domain.DepthStandard:      cfg.Estimate.DepthMultipliers.Standard,
			domain.DepthComprehensive: cfg.Estimate.DepthMultipliers.Comprehensive,
		},
	}
}

// planner computes demand and estimate for one spec.
type planner struct {
	policy  Policy
	units   int
	seconds int
}

var _ domain.JobVisitor = (*planner)(nil)

func (p *planner) VisitSingleVideo(domain.SingleVideoSpec) error {
	p.units = p.policy.SingleVideoUnits
	p.seconds = p.policy.SingleVideoSeconds
	return nil
}

func (p *planner) VisitAccountAnalysis(spec domain.AccountAnalysisSpec) error {
	p.units = p.policy.AccountAnalysisUnits
	m, ok := p.policy.DepthMultipliers[spec.AnalysisDepth]
	if !ok {
		m = 1
	}
	p.seconds = int(math.Ceil(float64(spec.MaxVideos*p.policy.PerVideoSeconds) * m))
	return nil
}

// Plan returns the number of units and the estimated seconds for spec.
func (p Policy) Plan(spec domain.JobSpec) (units int, seconds int, err error) {
	pl := &planner{policy: p}
	if err := spec.Accept(pl); err != nil {
		return 0, 0, err
	}
	return pl.units, pl.seconds, nil
}
