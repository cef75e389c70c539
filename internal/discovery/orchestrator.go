package discovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/niche-scout/internal/config"
	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/provider"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/internal/scorer"
	"github.com/sells-group/niche-scout/internal/workerpool"
)

const (
	defaultTrendsBatch        = 5
	defaultProductsPerKeyword = 10
	defaultMaxKeywords        = 30

	// manualCategory is the source category of research candidates.
	manualCategory = "manual"
)

// ErrRunInProgress is returned when Run is called while another run on the
// same Orchestrator has not finished.
var ErrRunInProgress = eris.New("discovery: run already in progress")

// Orchestrator sequences the stages of a run. Stages are barriers: each
// settles every sub-task before the next starts. Sub-task failures leave a
// signal absent; a stage with zero successes is reported as a StageError.
type Orchestrator struct {
	providers provider.Set
	limiter   *resilience.Limiter
	scorer    *scorer.Scorer

	trendsBatch        int
	productsPerKeyword int
	maxKeywords        int
	expansions         []Expansion
	retry              resilience.RetryConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	pool    *workerpool.Pool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTrendsBatchSize sets how many seeds go into one trends request.
func WithTrendsBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.trendsBatch = n
		}
	}
}

// WithProductsPerKeyword sets the marketplace result limit per keyword.
func WithProductsPerKeyword(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.productsPerKeyword = n
		}
	}
}

// WithMaxKeywords caps the expanded keyword list.
func WithMaxKeywords(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxKeywords = n
		}
	}
}

// WithExpansions replaces the keyword expansion templates. An empty list
// disables expansion.
func WithExpansions(e []Expansion) Option {
	return func(o *Orchestrator) {
		o.expansions = e
	}
}

// WithRetry sets the retry policy for rate-limited sub-tasks.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) {
		o.retry = cfg
	}
}

// FromConfig applies the discovery config section.
func FromConfig(cfg config.DiscoveryConfig) Option {
	return func(o *Orchestrator) {
		WithTrendsBatchSize(cfg.TrendsBatchSize)(o)
		WithProductsPerKeyword(cfg.ProductsPerKeyword)(o)
		WithMaxKeywords(cfg.MaxKeywords)(o)
		if len(cfg.Expansions) > 0 {
			o.expansions = ExpansionsFromConfig(cfg.Expansions)
		}
	}
}

// New creates an Orchestrator. The limiter is reset at the start of every
// run; a nil scorer uses the default point values.
func New(providers provider.Set, limiter *resilience.Limiter, sc *scorer.Scorer, opts ...Option) *Orchestrator {
	if sc == nil {
		sc = scorer.New(scorer.DefaultScorerConfig())
	}
	o := &Orchestrator{
		providers:          providers,
		limiter:            limiter,
		scorer:             sc,
		trendsBatch:        defaultTrendsBatch,
		productsPerKeyword: defaultProductsPerKeyword,
		maxKeywords:        defaultMaxKeywords,
		expansions:         DefaultExpansions(),
		retry:              resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Cancel aborts the current run. Queued sub-tasks are dropped, in-flight
// calls see their context cancelled, and Run returns the candidates gathered
// so far with a cancellation error.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
	if o.pool != nil {
		o.pool.Cancel()
	}
}

func (o *Orchestrator) begin(cancel context.CancelFunc, pool *workerpool.Pool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunInProgress
	}
	o.running = true
	o.cancel = cancel
	o.pool = pool
	return nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	o.cancel = nil
	o.pool = nil
}

// runState is the per-run bookkeeping. Stages run one after another, so
// only the aggregator and the DLQ are touched concurrently.
type runState struct {
	id     string
	mode   Mode
	opts   Options
	log    *zap.Logger
	agg    *Aggregator
	dlq    *resilience.DLQ
	pool   *workerpool.Pool
	stages []StageReport
	errs   []error
}

func (r *runState) complete(ctx context.Context, rep StageReport, started time.Time, firstErr error) {
	rep.Duration = time.Since(started)
	r.stages = append(r.stages, rep)

	fields := []zap.Field{
		zap.String("stage", string(rep.Stage)),
		zap.Int("attempted", rep.Attempted),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed),
		zap.Bool("skipped", rep.Skipped),
		zap.Duration("duration", rep.Duration),
	}
	if rep.Failed > 0 {
		stage := string(rep.Stage)
		sample := r.dlq.List(resilience.DLQFilter{Stage: stage, Limit: 3})
		keys := make([]string, len(sample))
		for i, e := range sample {
			keys[i] = e.Key
		}
		rejected := r.dlq.List(resilience.DLQFilter{Stage: stage, ErrorType: resilience.ErrorTypeCircuitOpen})
		fields = append(fields, zap.Strings("dead_letter_sample", keys), zap.Int("circuit_rejected", len(rejected)))
	}
	if rep.TotalFailure() && ctx.Err() == nil {
		r.errs = append(r.errs, &StageError{Stage: rep.Stage, Attempted: rep.Attempted, Err: firstErr})
		r.log.Warn("stage failed for every sub-task", append(fields, zap.Error(firstErr))...)
		return
	}
	r.log.Info("stage complete", fields...)
}

// Run executes one discovery or research run. The returned result is
// non-nil whenever the request is valid. The error joins every StageError,
// or reports cancellation.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunResult, error) {
	seeds := cleanList(req.Seeds)
	products := cleanList(req.Products)
	if len(seeds) == 0 && len(products) == 0 {
		return nil, eris.New("discovery: at least one seed keyword or product is required")
	}
	if o.providers.Marketplace == nil || o.providers.Sentiment == nil {
		return nil, eris.New("discovery: marketplace and sentiment providers are required")
	}
	opts := req.Options.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool := workerpool.New(opts.workers())
	if err := o.begin(cancel, pool); err != nil {
		return nil, err
	}
	defer o.end()

	if o.limiter != nil {
		o.limiter.Reset()
	}

	r := &runState{
		id:   uuid.NewString(),
		mode: req.Mode(),
		opts: opts,
		agg:  NewAggregator(),
		dlq:  resilience.NewDLQ(),
		pool: pool,
	}
	r.log = zap.L().With(zap.String("run_id", r.id), zap.String("mode", string(r.mode)))
	startedAt := time.Now()

	r.log.Info("run starting",
		zap.Int("seeds", len(seeds)),
		zap.Int("products", len(products)),
		zap.Int("max_products", opts.MaxProducts),
		zap.Int("concurrency", opts.workers()),
		zap.Bool("skip_trends", opts.SkipTrends),
	)

	if r.mode == ModeResearch {
		o.research(ctx, r, products)
	} else {
		o.discover(ctx, r, seeds)
	}

	// Scoring runs even after cancellation.
	start := time.Now()
	cands := o.scorer.ScoreAll(r.agg.Finalize())
	r.complete(ctx, StageReport{Stage: StageScored, Attempted: len(cands), Succeeded: len(cands)}, start, nil)

	cancelled := ctx.Err()
	if cancelled == nil {
		r.stages = append(r.stages, StageReport{Stage: StageDone})
	}

	result := &RunResult{
		RunID:      r.id,
		Mode:       r.mode,
		Candidates: cands,
		Stages:     r.stages,
		Failures:   r.dlq.List(resilience.DLQFilter{}),
		StartedAt:  startedAt,
		Duration:   time.Since(startedAt),
	}
	if o.limiter != nil {
		result.Sources = o.limiter.Stats()
	}

	if cancelled != nil {
		r.log.Warn("run cancelled", zap.Int("candidates", len(cands)), zap.Error(cancelled))
		return result, eris.Wrap(cancelled, "discovery: run cancelled")
	}

	r.log.Info("run complete",
		zap.Int("candidates", len(cands)),
		zap.Int("failures", len(result.Failures)),
		zap.Int("stage_errors", len(r.errs)),
		zap.Duration("duration", result.Duration),
	)
	return result, errors.Join(r.errs...)
}

func (o *Orchestrator) discover(ctx context.Context, r *runState, seeds []string) {
	r.complete(ctx, StageReport{Stage: StageSeeded, Attempted: len(seeds), Succeeded: len(seeds)}, time.Now(), nil)

	topics, trendsOK := o.fetchTrends(ctx, r, seeds)
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	keywords := Expand(topics, o.expansions, o.maxKeywords)
	if len(keywords) == 0 {
		if trendsOK {
			r.log.Warn("no product topics in trend data, searching seeds directly")
		}
		keywords = SeedKeywords(seeds)
		if len(keywords) > o.maxKeywords {
			keywords = keywords[:o.maxKeywords]
		}
	}
	r.complete(ctx, StageReport{Stage: StageKeywordsExpanded, Attempted: len(topics), Succeeded: len(keywords)}, start, nil)

	o.searchKeywords(ctx, r, keywords)
	if ctx.Err() != nil {
		return
	}
	if n := r.agg.Truncate(r.opts.MaxProducts); n > 0 {
		r.log.Info("candidate cap reached", zap.Int("max_products", r.opts.MaxProducts), zap.Int("dropped", n))
	}

	o.gatherSentiment(ctx, r)
}

func (o *Orchestrator) research(ctx context.Context, r *runState, products []string) {
	start := time.Now()
	for _, p := range products {
		if r.agg.Len() >= r.opts.MaxProducts {
			break
		}
		r.agg.Upsert(Update{
			Name:           p,
			SourceCategory: manualCategory,
			Keyword:        NormalizeName(p),
			Origin:         model.OriginManual,
			Niche:          ClassifyNiche(p),
		})
	}
	r.complete(ctx, StageReport{Stage: StageSeeded, Attempted: len(products), Succeeded: r.agg.Len()}, start, nil)

	o.checkTrends(ctx, r)
	if ctx.Err() != nil {
		return
	}
	r.complete(ctx, StageReport{Stage: StageKeywordsExpanded, Skipped: true}, time.Now(), nil)

	o.checkCompetition(ctx, r)
	if ctx.Err() != nil {
		return
	}

	o.gatherSentiment(ctx, r)
}

// fetchTrends queries related topics for seeds in batches. The bool
// reports whether at least one batch succeeded.
func (o *Orchestrator) fetchTrends(ctx context.Context, r *runState, seeds []string) ([]model.TrendTopic, bool) {
	start := time.Now()
	if r.opts.SkipTrends || o.providers.Trends == nil {
		r.complete(ctx, StageReport{Stage: StageTrendsFetched, Skipped: true}, start, nil)
		return nil, false
	}

	batches := chunk(seeds, o.trendsBatch)
	tasks := make([]workerpool.Task[[]model.TrendTopic], len(batches))
	for i, batch := range batches {
		tasks[i] = func(ctx context.Context) ([]model.TrendTopic, error) {
			return fetch(ctx, o, r, StageTrendsFetched, provider.SourceTrends, strings.Join(batch, ", "),
				func(ctx context.Context, fo provider.FetchOptions) ([]model.TrendTopic, error) {
					return o.providers.Trends.Fetch(ctx, batch, fo)
				})
		}
	}

	rep := StageReport{Stage: StageTrendsFetched, Attempted: len(tasks)}
	var topics []model.TrendTopic
	var firstErr error
	for _, res := range workerpool.Submit(ctx, r.pool, tasks) {
		if res.Err != nil {
			rep.Failed++
			firstErr = keepFirst(firstErr, res.Err)
			continue
		}
		rep.Succeeded++
		topics = append(topics, res.Value...)
	}
	r.complete(ctx, rep, start, firstErr)
	return topics, rep.Succeeded > 0
}

// checkTrends attaches each research candidate's own interest direction.
func (o *Orchestrator) checkTrends(ctx context.Context, r *runState) {
	start := time.Now()
	if r.opts.SkipTrends || o.providers.Trends == nil {
		r.complete(ctx, StageReport{Stage: StageTrendsFetched, Skipped: true}, start, nil)
		return
	}

	cands := r.agg.Finalize()
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.Name
	}

	batches := chunk(names, o.trendsBatch)
	tasks := make([]workerpool.Task[[]model.TrendTopic], len(batches))
	for i, batch := range batches {
		tasks[i] = func(ctx context.Context) ([]model.TrendTopic, error) {
			return fetch(ctx, o, r, StageTrendsFetched, provider.SourceTrends, strings.Join(batch, ", "),
				func(ctx context.Context, fo provider.FetchOptions) ([]model.TrendTopic, error) {
					return o.providers.Trends.Check(ctx, batch, fo)
				})
		}
	}

	rep := StageReport{Stage: StageTrendsFetched, Attempted: len(tasks)}
	var firstErr error
	for _, res := range workerpool.Submit(ctx, r.pool, tasks) {
		if res.Err != nil {
			rep.Failed++
			firstErr = keepFirst(firstErr, res.Err)
			continue
		}
		rep.Succeeded++
		for _, t := range res.Value {
			if _, ok := r.agg.Get(NormalizeID(t.Keyword)); !ok {
				continue
			}
			r.agg.Upsert(Update{Name: t.Keyword, Trend: &model.TrendSignal{Keyword: t.Keyword, Direction: t.Direction, Magnitude: t.Magnitude}})
		}
	}
	r.complete(ctx, rep, start, firstErr)
}

type searchResult struct {
	listings []model.Listing
	err      error
}

// searchAll runs one marketplace search per query. Outstanding calls are
// bounded by the marketplace gate, not by a pool.
func (o *Orchestrator) searchAll(ctx context.Context, r *runState, queries []string) []searchResult {
	results := make([]searchResult, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			results[i].listings, results[i].err = fetch(ctx, o, r, StageMarketplaceSearched, provider.SourceMarketplace, q,
				func(ctx context.Context, fo provider.FetchOptions) ([]model.Listing, error) {
					return o.providers.Marketplace.Search(ctx, q, o.productsPerKeyword, fo)
				})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// searchKeywords turns each keyword's listings into candidates. A keyword
// whose search failed or found nothing becomes a candidate itself.
func (o *Orchestrator) searchKeywords(ctx context.Context, r *runState, keywords []Keyword) {
	start := time.Now()
	queries := make([]string, len(keywords))
	for i, kw := range keywords {
		queries[i] = kw.Text
	}
	results := o.searchAll(ctx, r, queries)

	rep := StageReport{Stage: StageMarketplaceSearched, Attempted: len(keywords)}
	var firstErr error
	for i, kw := range keywords {
		res := results[i]
		u := Update{
			Name:           kw.Text,
			SourceCategory: kw.Seed,
			Keyword:        kw.Text,
			Origin:         kw.Origin,
			Niche:          kw.Niche,
			Trend:          kw.Trend,
		}
		if res.err != nil {
			rep.Failed++
			firstErr = keepFirst(firstErr, res.err)
			r.agg.Upsert(u)
			continue
		}
		rep.Succeeded++

		sig := provider.Summarize(res.listings)
		u.Marketplace = &sig
		if len(res.listings) == 0 {
			r.agg.Upsert(u)
			continue
		}
		for _, l := range res.listings {
			u.Name = l.Name
			u.Niche = kw.Niche
			if u.Niche == model.NicheNone {
				u.Niche = ClassifyNiche(l.Name)
			}
			r.agg.Upsert(u)
		}
	}
	r.complete(ctx, rep, start, firstErr)
}

// checkCompetition attaches a marketplace signal to each research candidate.
func (o *Orchestrator) checkCompetition(ctx context.Context, r *runState) {
	start := time.Now()
	cands := r.agg.Finalize()
	queries := make([]string, len(cands))
	for i, c := range cands {
		queries[i] = c.Name
	}
	results := o.searchAll(ctx, r, queries)

	rep := StageReport{Stage: StageMarketplaceSearched, Attempted: len(cands)}
	var firstErr error
	for i, c := range cands {
		if results[i].err != nil {
			rep.Failed++
			firstErr = keepFirst(firstErr, results[i].err)
			continue
		}
		rep.Succeeded++
		sig := provider.Summarize(results[i].listings)
		r.agg.Upsert(Update{Name: c.Name, Marketplace: &sig})
	}
	r.complete(ctx, rep, start, firstErr)
}

// gatherSentiment fans out one sentiment task per candidate on the run's
// pool. Candidates without any discussion keep an absent signal.
func (o *Orchestrator) gatherSentiment(ctx context.Context, r *runState) {
	start := time.Now()
	cands := r.agg.Finalize()

	tasks := make([]workerpool.Task[model.SentimentSignal], len(cands))
	for i, c := range cands {
		tasks[i] = func(ctx context.Context) (model.SentimentSignal, error) {
			return fetch(ctx, o, r, StageSentimentGathered, provider.SourceSentiment, c.Name,
				func(ctx context.Context, fo provider.FetchOptions) (model.SentimentSignal, error) {
					fo.Fallback = c.Keyword
					return o.providers.Sentiment.Fetch(ctx, c.Name, fo)
				})
		}
	}

	rep := StageReport{Stage: StageSentimentGathered, Attempted: len(tasks)}
	var firstErr error
	for i, res := range workerpool.Submit(ctx, r.pool, tasks) {
		if res.Err != nil {
			rep.Failed++
			firstErr = keepFirst(firstErr, res.Err)
			continue
		}
		rep.Succeeded++
		if res.Value.PostCount > 0 {
			sig := res.Value
			r.agg.Upsert(Update{Name: cands[i].Name, Sentiment: &sig})
		}
	}
	r.complete(ctx, rep, start, firstErr)
}

// fetch runs one sub-task under the retry policy. Exhausted sub-tasks are
// recorded in the run's DLQ unless the run was cancelled.
func fetch[T any](ctx context.Context, o *Orchestrator, r *runState, stage Stage, source, key string, call func(context.Context, provider.FetchOptions) (T, error)) (T, error) {
	cfg := o.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(source, string(stage))
	}

	var attempts int
	v, err := resilience.Retry(ctx, cfg, func(ctx context.Context, attempt int) (T, error) {
		attempts = attempt
		return call(ctx, provider.FetchOptions{Attempt: attempt})
	})
	if err != nil {
		if ctx.Err() == nil {
			r.dlq.Add(string(stage), source, key, attempts, err)
		}
		r.log.Debug("sub-task failed",
			zap.String("stage", string(stage)),
			zap.String("source", source),
			zap.String("key", key),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
	return v, err
}

func keepFirst(first, err error) error {
	if first != nil {
		return first
	}
	return err
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = NormalizeName(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var out [][]string
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}
