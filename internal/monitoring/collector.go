// Package monitoring evaluates finished runs for source health problems and
// delivers alerts to a webhook.
package monitoring

import (
	"time"

	"github.com/sells-group/niche-scout/internal/discovery"
)

// SourceHealth is the call outcome summary for one source in one run.
type SourceHealth struct {
	Source      string  `json:"source"`
	State       string  `json:"state"`
	Calls       int     `json:"calls"`
	Failures    int     `json:"failures"`
	RateLimited int     `json:"rate_limited"`
	Rejected    int     `json:"rejected"`
	FailRate    float64 `json:"fail_rate"`
}

// RunSnapshot holds the health view of a single run.
type RunSnapshot struct {
	RunID        string            `json:"run_id"`
	Mode         discovery.Mode    `json:"mode"`
	Candidates   int               `json:"candidates"`
	Sources      []SourceHealth    `json:"sources"`
	FailedStages []discovery.Stage `json:"failed_stages,omitempty"`
	DLQDepth     int               `json:"dlq_depth"`
	Completed    bool              `json:"completed"`
	CollectedAt  time.Time         `json:"collected_at"`
}

// Collect builds a snapshot from a run result.
func Collect(res *discovery.RunResult) *RunSnapshot {
	snap := &RunSnapshot{
		RunID:       res.RunID,
		Mode:        res.Mode,
		Candidates:  len(res.Candidates),
		DLQDepth:    len(res.Failures),
		CollectedAt: time.Now().UTC(),
	}

	for _, s := range res.Sources {
		h := SourceHealth{
			Source:      s.Source,
			State:       s.State,
			Calls:       s.Successes + s.Failures + s.RateLimited + s.Rejected,
			Failures:    s.Failures,
			RateLimited: s.RateLimited,
			Rejected:    s.Rejected,
		}
		if h.Calls > 0 {
			h.FailRate = float64(h.Failures+h.Rejected) / float64(h.Calls)
		}
		snap.Sources = append(snap.Sources, h)
	}

	for _, st := range res.Stages {
		if st.TotalFailure() {
			snap.FailedStages = append(snap.FailedStages, st.Stage)
		}
		if st.Stage == discovery.StageDone {
			snap.Completed = true
		}
	}
	return snap
}
