// Package metrics exports run and source health as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/niche-scout/internal/discovery"
)

const (
	// Namespace prefixes every metric name.
	Namespace = "niche_scout"
)

// circuitStates maps limiter state names onto gauge values.
var circuitStates = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// Metrics holds the Prometheus collectors updated after each run.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds *prometheus.HistogramVec
	RunCandidates      *prometheus.GaugeVec
	StageFailuresTotal *prometheus.CounterVec
	DeadLettersTotal   *prometheus.CounterVec

	SourceCallsTotal *prometheus.CounterVec
	CircuitState     *prometheus.GaugeVec
}

// New creates and registers the collectors. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}

	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Completed runs by mode and result",
		},
		[]string{"mode", "result"},
	)

	m.RunDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		},
		[]string{"mode"},
	)

	m.RunCandidates = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_candidates",
			Help:      "Candidates produced by the latest run",
		},
		[]string{"mode"},
	)

	m.StageFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stage_failures_total",
			Help:      "Stages in which every sub-task failed",
		},
		[]string{"stage"},
	)

	m.DeadLettersTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dead_letters_total",
			Help:      "Sub-tasks that exhausted their attempts",
		},
		[]string{"source", "error_type"},
	)

	m.SourceCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "source",
			Name:      "calls_total",
			Help:      "Upstream calls by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	m.CircuitState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "source",
			Name:      "circuit_state",
			Help:      "Circuit state at the end of the latest run (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	return m
}

// ObserveRun records a finished run. runErr is the error Run returned.
func (m *Metrics) ObserveRun(res *discovery.RunResult, runErr error) {
	mode := string(res.Mode)
	result := "ok"
	if _, done := res.Stage(discovery.StageDone); !done {
		result = "cancelled"
	} else if runErr != nil {
		result = "degraded"
	}

	m.RunsTotal.WithLabelValues(mode, result).Inc()
	m.RunDurationSeconds.WithLabelValues(mode).Observe(res.Duration.Seconds())
	m.RunCandidates.WithLabelValues(mode).Set(float64(len(res.Candidates)))

	for _, st := range res.Stages {
		if st.TotalFailure() {
			m.StageFailuresTotal.WithLabelValues(string(st.Stage)).Inc()
		}
	}
	for _, f := range res.Failures {
		m.DeadLettersTotal.WithLabelValues(f.Source, f.ErrorType).Inc()
	}

	for _, s := range res.Sources {
		m.SourceCallsTotal.WithLabelValues(s.Source, "success").Add(float64(s.Successes))
		m.SourceCallsTotal.WithLabelValues(s.Source, "failure").Add(float64(s.Failures))
		m.SourceCallsTotal.WithLabelValues(s.Source, "rate_limited").Add(float64(s.RateLimited))
		m.SourceCallsTotal.WithLabelValues(s.Source, "rejected").Add(float64(s.Rejected))
		m.SourceCallsTotal.WithLabelValues(s.Source, "cancelled").Add(float64(s.Cancelled))
		m.SourceCallsTotal.WithLabelValues(s.Source, "blocked").Add(float64(s.Blocked))
		if v, ok := circuitStates[s.State]; ok {
			m.CircuitState.WithLabelValues(s.Source).Set(v)
		}
	}
}
