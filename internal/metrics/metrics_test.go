package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/niche-scout/internal/discovery"
	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/resilience"
)

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	res := &discovery.RunResult{
		Mode:       discovery.ModeDiscover,
		Candidates: []model.Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Stages: []discovery.StageReport{
			{Stage: discovery.StageTrendsFetched, Attempted: 1, Failed: 1},
			{Stage: discovery.StageDone},
		},
		Sources: []resilience.SourceStats{
			{Source: "trends", State: "open", Failures: 3, Rejected: 1},
			{Source: "marketplace", State: "closed", Successes: 8},
		},
		Failures: []resilience.DLQEntry{{Source: "trends", ErrorType: "transient"}},
		Duration: 3 * time.Second,
	}
	m.ObserveRun(res, errors.New("trends_fetched: every sub-task failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("discover", "degraded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RunCandidates.WithLabelValues("discover")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageFailuresTotal.WithLabelValues("trends_fetched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadLettersTotal.WithLabelValues("trends", "transient")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SourceCallsTotal.WithLabelValues("trends", "failure")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.SourceCallsTotal.WithLabelValues("marketplace", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitState.WithLabelValues("trends")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitState.WithLabelValues("marketplace")))
}

func TestObserveRun_Cancelled(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun(&discovery.RunResult{
		Mode:   discovery.ModeResearch,
		Stages: []discovery.StageReport{{Stage: discovery.StageScored}},
	}, errors.New("cancelled"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("research", "cancelled")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("research", "ok")))
}
