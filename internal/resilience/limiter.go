package resilience

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Outcome is the result of one attempted remote fetch, as seen by the limiter.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeTransientError
	OutcomePermanentError
	// OutcomeCancelled is reported when the caller gave up. It never counts
	// as a source failure.
	OutcomeCancelled
	// OutcomeBlocked means the source refused the client outright (403).
	// It opens the circuit at once.
	OutcomeBlocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransientError:
		return "transient_error"
	case OutcomePermanentError:
		return "permanent_error"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// SourceCall records one attempted fetch against a source.
type SourceCall struct {
	Source  string  `json:"source"`
	Attempt int     `json:"attempt"`
	Outcome Outcome `json:"outcome"`
}

// SourceLimits configures the gate in front of one source.
type SourceLimits struct {
	// MinDelay is the minimum spacing between call starts.
	MinDelay time.Duration
	// Jitter is added to MinDelay as a uniform random offset in [-Jitter, +Jitter].
	Jitter time.Duration
	// PerMinute caps call starts per minute. Zero means no ceiling.
	PerMinute int
	// MaxInFlight caps concurrently outstanding calls. Zero means 1.
	MaxInFlight int
	// MaxWait is the longest Acquire will wait for a slot before failing
	// with ErrRateLimited. Zero means wait as long as the context allows.
	MaxWait time.Duration
}

// DefaultBackoffSchedule is the escalation applied after consecutive
// transient failures. The last step repeats.
func DefaultBackoffSchedule() []time.Duration {
	return []time.Duration{60 * time.Second, 120 * time.Second, 300 * time.Second}
}

// SourceStats is a per-source snapshot for run reporting.
type SourceStats struct {
	Source              string     `json:"source"`
	State               string     `json:"state"`
	OpenUntil           *time.Time `json:"open_until,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Permits             int        `json:"permits"`
	Successes           int        `json:"successes"`
	Failures            int        `json:"failures"`
	RateLimited         int        `json:"rate_limited"`
	Rejected            int        `json:"rejected"`
	Cancelled           int        `json:"cancelled"`
	Blocked             int        `json:"blocked"`
	LastCall            SourceCall `json:"last_call"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source and the wait function.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		if now != nil {
			l.nowFunc = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// WithRand overrides the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(l *Limiter) {
		l.randFunc = f
	}
}

// Limiter gates every call to every source. Each source has its own lock,
// breaker, and schedule, so sources never block each other.
type Limiter struct {
	mu       sync.Mutex
	gates    map[string]*gate
	limits   map[string]SourceLimits
	defaults SourceLimits
	circuit  CircuitBreakerConfig
	backoff  []time.Duration

	nowFunc  func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	randFunc func() float64
}

type gate struct {
	source   string
	limits   SourceLimits
	breaker  *CircuitBreaker
	inFlight *semaphore.Weighted

	mu           sync.Mutex
	ceiling      *rate.Limiter
	lastSlot     time.Time
	backoffStep  int
	backoffUntil time.Time
	stats        SourceStats
}

// Permit is the right to make one call. It must be handed back through
// Limiter.Report exactly once.
type Permit struct {
	Source  string
	Attempt int
	// RetryAfter is the wait the source asked for, if any. A rate-limited
	// or transient report pushes the next slot out at least this far.
	RetryAfter time.Duration

	g    *gate
	once sync.Once
}

// NewLimiter creates a limiter. Sources missing from limits use defaults.
func NewLimiter(limits map[string]SourceLimits, defaults SourceLimits, circuit CircuitBreakerConfig, backoff []time.Duration, opts ...Option) *Limiter {
	if len(backoff) == 0 {
		backoff = DefaultBackoffSchedule()
	}
	l := &Limiter{
		gates:    make(map[string]*gate),
		limits:   limits,
		defaults: defaults,
		circuit:  circuit,
		backoff:  backoff,
		nowFunc:  time.Now,
		sleep:    sleepCtx,
		randFunc: rand.Float64,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Acquire waits for an in-flight slot and then for the source's next start
// slot. It fails fast with ErrCircuitOpen when the breaker rejects the call,
// and with ErrRateLimited when either wait would exceed MaxWait. A cancelled
// context abandons the wait without counting as a failure.
func (l *Limiter) Acquire(ctx context.Context, source string) (*Permit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := l.gate(source)

	if err := g.breaker.Allow(); err != nil {
		g.mu.Lock()
		g.stats.Rejected++
		g.mu.Unlock()
		return nil, eris.Wrapf(err, "resilience: %s", source)
	}

	// Start slots are booked only once the call holds an in-flight slot, so
	// spacing is measured between real call starts.
	if err := l.acquireInFlight(ctx, g); err != nil {
		g.breaker.Release()
		return nil, err
	}

	wait, err := l.reserve(g)
	if err != nil {
		g.inFlight.Release(1)
		g.breaker.Release()
		return nil, err
	}

	if wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			g.inFlight.Release(1)
			g.breaker.Release()
			l.countCancelled(g)
			return nil, err
		}
	}

	g.mu.Lock()
	g.stats.Permits++
	g.mu.Unlock()

	return &Permit{Source: source, g: g}, nil
}

func (l *Limiter) acquireInFlight(ctx context.Context, g *gate) error {
	if g.limits.MaxWait <= 0 {
		if err := g.inFlight.Acquire(ctx, 1); err != nil {
			l.countCancelled(g)
			return err
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.limits.MaxWait)
	defer cancel()
	if err := g.inFlight.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			l.countCancelled(g)
			return ctxErr
		}
		g.mu.Lock()
		g.stats.RateLimited++
		g.mu.Unlock()
		return eris.Wrapf(ErrRateLimited, "resilience: %s: no in-flight slot within %s", g.source, g.limits.MaxWait)
	}
	return nil
}

// reserve claims the next start slot under the gate lock so that two
// concurrent callers never receive the same slot.
func (l *Limiter) reserve(g *gate) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := l.nowFunc()
	slot := now
	if !g.lastSlot.IsZero() {
		if next := g.lastSlot.Add(l.spacing(g.limits)); next.After(slot) {
			slot = next
		}
	}
	if g.backoffUntil.After(slot) {
		slot = g.backoffUntil
	}

	r := g.ceiling.ReserveN(slot, 1)
	if !r.OK() {
		g.stats.RateLimited++
		return 0, eris.Wrapf(ErrRateLimited, "resilience: %s: ceiling cannot admit call", g.source)
	}
	slot = slot.Add(r.DelayFrom(slot))

	wait := slot.Sub(now)
	if g.limits.MaxWait > 0 && wait > g.limits.MaxWait {
		r.CancelAt(now)
		g.stats.RateLimited++
		return 0, eris.Wrapf(ErrRateLimited, "resilience: %s: next slot in %s", g.source, wait.Round(time.Second))
	}

	g.lastSlot = slot
	return wait, nil
}

// spacing returns the jittered minimum delay between call starts.
func (l *Limiter) spacing(lim SourceLimits) time.Duration {
	d := lim.MinDelay
	if lim.Jitter > 0 {
		d += time.Duration((l.randFunc()*2 - 1) * float64(lim.Jitter))
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Report hands back a permit with the call's outcome. Success resets the
// backoff and closes a half-open circuit; failures escalate the backoff and
// count toward the breaker threshold. Reporting the same permit twice is a
// no-op.
func (l *Limiter) Report(p *Permit, outcome Outcome) {
	if p == nil || p.g == nil {
		return
	}
	p.once.Do(func() {
		defer p.g.inFlight.Release(1)
		l.record(p.g, SourceCall{Source: p.Source, Attempt: p.Attempt, Outcome: outcome}, p.RetryAfter)
	})
}

func (l *Limiter) record(g *gate, call SourceCall, retryAfter time.Duration) {
	switch call.Outcome {
	case OutcomeSuccess:
		g.breaker.RecordSuccess()
	case OutcomeCancelled:
		g.breaker.Release()
	case OutcomeBlocked:
		g.breaker.Trip()
	default:
		g.breaker.RecordFailure()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.stats.LastCall = call
	switch call.Outcome {
	case OutcomeSuccess:
		g.stats.Successes++
		g.backoffStep = 0
		g.backoffUntil = time.Time{}
	case OutcomeRateLimited, OutcomeTransientError:
		g.stats.Failures++
		step := g.backoffStep
		if step >= len(l.backoff) {
			step = len(l.backoff) - 1
		}
		now := l.nowFunc()
		g.backoffUntil = now.Add(l.backoff[step])
		if until := now.Add(retryAfter); until.After(g.backoffUntil) {
			g.backoffUntil = until
		}
		g.backoffStep++
	case OutcomePermanentError:
		g.stats.Failures++
	case OutcomeBlocked:
		g.stats.Failures++
		g.stats.Blocked++
	case OutcomeCancelled:
		g.stats.Cancelled++
	}
}

func (l *Limiter) countCancelled(g *gate) {
	g.mu.Lock()
	g.stats.Cancelled++
	g.mu.Unlock()
}

// State returns the breaker state for source.
func (l *Limiter) State(source string) CircuitState {
	return l.gate(source).breaker.State()
}

// Stats returns a snapshot of every source seen so far, sorted by name.
func (l *Limiter) Stats() []SourceStats {
	l.mu.Lock()
	gates := make([]*gate, 0, len(l.gates))
	for _, g := range l.gates {
		gates = append(gates, g)
	}
	l.mu.Unlock()

	out := make([]SourceStats, 0, len(gates))
	for _, g := range gates {
		g.mu.Lock()
		s := g.stats
		g.mu.Unlock()
		s.State = g.breaker.State().String()
		s.ConsecutiveFailures, _ = g.breaker.Counters()
		if until := g.breaker.OpenUntil(); !until.IsZero() {
			s.OpenUntil = &until
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Reset discards all per-source state. Called at the start of a run.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gates = make(map[string]*gate)
}

func (l *Limiter) gate(source string) *gate {
	l.mu.Lock()
	defer l.mu.Unlock()

	if g, ok := l.gates[source]; ok {
		return g
	}

	lim, ok := l.limits[source]
	if !ok {
		lim = l.defaults
	}
	if lim.MaxInFlight <= 0 {
		lim.MaxInFlight = 1
	}

	ceiling := rate.NewLimiter(rate.Inf, 1)
	if lim.PerMinute > 0 {
		ceiling = rate.NewLimiter(rate.Every(time.Minute/time.Duration(lim.PerMinute)), 1)
	}

	cbCfg := l.circuit
	userHook := cbCfg.OnStateChange
	cbCfg.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("resilience: circuit state change",
			zap.String("source", source),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		if userHook != nil {
			userHook(from, to)
		}
	}
	cb := NewCircuitBreaker(cbCfg)
	cb.nowFunc = l.nowFunc

	g := &gate{
		source:   source,
		limits:   lim,
		breaker:  cb,
		inFlight: semaphore.NewWeighted(int64(lim.MaxInFlight)),
		ceiling:  ceiling,
		stats:    SourceStats{Source: source},
	}
	l.gates[source] = g
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
