// Package discovery turns seed keywords or a product list into a ranked list
// of product opportunities.
package discovery

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/niche-scout/internal/config"
	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/internal/workerpool"
)

// Stage is one step of a run. Stages complete in declaration order.
type Stage string

const (
	StageSeeded              Stage = "seeded"
	StageTrendsFetched       Stage = "trends_fetched"
	StageKeywordsExpanded    Stage = "keywords_expanded"
	StageMarketplaceSearched Stage = "marketplace_searched"
	StageSentimentGathered   Stage = "sentiment_gathered"
	StageScored              Stage = "scored"
	StageDone                Stage = "done"
)

// Mode selects how candidates enter a run.
type Mode string

const (
	// ModeDiscover derives candidates from seed keywords via trends and
	// marketplace search.
	ModeDiscover Mode = "discover"
	// ModeResearch evaluates a caller-supplied product list.
	ModeResearch Mode = "research"
)

// ErrStageTotalFailure marks a stage in which every sub-task failed.
var ErrStageTotalFailure = eris.New("discovery: stage total failure")

// StageError reports a stage with zero successful sub-tasks. The run still
// completes with degraded candidates.
type StageError struct {
	Stage     Stage
	Attempted int
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("discovery: stage %s failed for all %d sub-tasks: %v", e.Stage, e.Attempted, e.Err)
}

// Unwrap exposes both ErrStageTotalFailure and the first sub-task error.
func (e *StageError) Unwrap() []error {
	return []error{ErrStageTotalFailure, e.Err}
}

// Options are the per-run knobs exposed to callers.
type Options struct {
	MaxProducts int  `json:"max_products"`
	Concurrency int  `json:"concurrency"`
	SkipTrends  bool `json:"skip_trends"`
	Sequential  bool `json:"sequential"`
}

// DefaultOptions returns the options used when a Request leaves them zero.
func DefaultOptions() Options {
	return Options{MaxProducts: 50, Concurrency: workerpool.DefaultMaxInFlight}
}

// OptionsFromConfig builds run options from the discovery config section.
func OptionsFromConfig(cfg config.DiscoveryConfig) Options {
	return Options{
		MaxProducts: cfg.MaxProducts,
		Concurrency: cfg.Concurrency,
		SkipTrends:  cfg.SkipTrends,
		Sequential:  cfg.Sequential,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxProducts <= 0 {
		o.MaxProducts = d.MaxProducts
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	return o
}

// workers is the sentiment fan-out width.
func (o Options) workers() int {
	if o.Sequential {
		return 1
	}
	return o.Concurrency
}

// Request is one run's input: seed keywords for discovery or a product
// list for research. Products take precedence when both are set.
type Request struct {
	Seeds    []string
	Products []string
	Options  Options
}

// Mode reports which flow the request runs.
func (r Request) Mode() Mode {
	if len(r.Products) > 0 {
		return ModeResearch
	}
	return ModeDiscover
}

// StageReport summarizes the sub-tasks of one stage.
type StageReport struct {
	Stage     Stage         `json:"stage"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   bool          `json:"skipped,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// TotalFailure reports whether the stage ran sub-tasks and none succeeded.
func (s StageReport) TotalFailure() bool {
	return !s.Skipped && s.Attempted > 0 && s.Succeeded == 0
}

// RunResult is everything a run produced. Candidates are sorted by score
// descending.
type RunResult struct {
	RunID      string                   `json:"run_id"`
	Mode       Mode                     `json:"mode"`
	Candidates []model.Candidate        `json:"candidates"`
	Stages     []StageReport            `json:"stages"`
	Sources    []resilience.SourceStats `json:"sources"`
	Failures   []resilience.DLQEntry    `json:"failures,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	Duration   time.Duration            `json:"duration_ns"`
}

// Stage returns the report for s, if the run reached it.
func (r *RunResult) Stage(s Stage) (StageReport, bool) {
	for _, rep := range r.Stages {
		if rep.Stage == s {
			return rep, true
		}
	}
	return StageReport{}, false
}
