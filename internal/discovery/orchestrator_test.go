package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/provider"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/internal/scorer"
)

type fakes struct {
	trends      *fakeTrends
	marketplace *fakeMarketplace
	sentiment   *fakeSentiment
}

func (f fakes) set() provider.Set {
	return provider.Set{Trends: f.trends, Marketplace: f.marketplace, Sentiment: f.sentiment}
}

func kitchenFakes(sentiment model.SentimentSignal) fakes {
	return fakes{
		trends: &fakeTrends{topics: map[string][]model.TrendTopic{
			"kitchen": {{Seed: "kitchen", Keyword: "air fryer", Direction: model.DirectionRising, Magnitude: 0.8}},
		}},
		marketplace: &fakeMarketplace{listings: map[string][]model.Listing{
			"air fryer": {{Name: "Air Fryer", ReviewCount: 50, Rating: 4.5}},
		}},
		sentiment: &fakeSentiment{signals: map[string]model.SentimentSignal{"Air Fryer": sentiment}},
	}
}

func newTestOrchestrator(f fakes, opts ...Option) *Orchestrator {
	opts = append([]Option{WithExpansions(nil), WithRetry(noSleepRetry())}, opts...)
	return New(f.set(), nil, scorer.New(scorer.DefaultScorerConfig()), opts...)
}

func stageNames(r *RunResult) []Stage {
	var out []Stage
	for _, s := range r.Stages {
		out = append(out, s.Stage)
	}
	return out
}

func names(cands []model.Candidate) []string {
	var out []string
	for _, c := range cands {
		out = append(out, c.Name)
	}
	return out
}

func TestRun_RisingLowSaturationPositive(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{Polarity: 0.6, PostCount: 20, PositiveRatio: 0.85, PositivePosts: 17, NegativePosts: 3})

	res, err := newTestOrchestrator(f).Run(context.Background(), Request{Seeds: []string{"kitchen"}})
	require.NoError(t, err)

	_, uerr := uuid.Parse(res.RunID)
	assert.NoError(t, uerr)
	assert.Equal(t, ModeDiscover, res.Mode)
	assert.Equal(t, []Stage{
		StageSeeded, StageTrendsFetched, StageKeywordsExpanded, StageMarketplaceSearched,
		StageSentimentGathered, StageScored, StageDone,
	}, stageNames(res))

	require.Len(t, res.Candidates, 1)
	c := res.Candidates[0]
	assert.Equal(t, "air fryer", c.ID)
	assert.Equal(t, "kitchen", c.SourceCategory)
	assert.Equal(t, model.OriginTrend, c.Origin)
	require.NotNil(t, c.Marketplace)
	assert.Equal(t, model.SaturationLow, c.Marketplace.SaturationTier)
	require.NotNil(t, c.Sentiment)
	require.NotNil(t, c.Score)
	assert.GreaterOrEqual(t, *c.Score, 70.0)

	assert.Equal(t, "air fryer", f.sentiment.fallbacks["Air Fryer"])
	assert.Empty(t, res.Failures)
}

func TestRun_NegativeDominantDropsScore(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{Polarity: -0.3, PostCount: 20, PositiveRatio: 0.2, PositivePosts: 3, NegativePosts: 12})

	res, err := newTestOrchestrator(f).Run(context.Background(), Request{Seeds: []string{"kitchen"}})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	b := scorer.New(scorer.DefaultScorerConfig()).Breakdown(res.Candidates[0])
	assert.Equal(t, -15.0, b.Adjustment)
	assert.Less(t, res.Candidates[0].ScoreValue(), 70.0)
}

func TestRun_MarketplaceTotalFailure(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{Polarity: 0.5, PostCount: 8, PositiveRatio: 0.9, PositivePosts: 7})
	f.marketplace.err = fmt.Errorf("marketplace: %w", resilience.ErrCircuitOpen)
	f.sentiment.signals["air fryer"] = model.SentimentSignal{Polarity: 0.5, PostCount: 8, PositiveRatio: 0.9, PositivePosts: 7}

	res, err := newTestOrchestrator(f).Run(context.Background(), Request{Seeds: []string{"kitchen"}})
	require.Error(t, err)
	require.NotNil(t, res)

	assert.ErrorIs(t, err, ErrStageTotalFailure)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageMarketplaceSearched, se.Stage)
	assert.Equal(t, 1, se.Attempted)

	require.Len(t, res.Candidates, 1)
	c := res.Candidates[0]
	assert.Equal(t, "air fryer", c.Name)
	assert.Nil(t, c.Marketplace)
	require.NotNil(t, c.Trend)
	require.NotNil(t, c.Sentiment)
	assert.Greater(t, c.ScoreValue(), 30.0)

	// Circuit rejections are not retried.
	assert.Equal(t, 1, f.marketplace.calls())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "circuit_open", res.Failures[0].ErrorType)
	assert.Equal(t, string(StageMarketplaceSearched), res.Failures[0].Stage)

	rep, ok := res.Stage(StageMarketplaceSearched)
	require.True(t, ok)
	assert.True(t, rep.TotalFailure())
	assert.Contains(t, stageNames(res), StageDone)
}

func TestRun_TrendsFailureFallsBackToSeeds(t *testing.T) {
	f := fakes{
		trends: &fakeTrends{err: errors.New("trends: 503")},
		marketplace: &fakeMarketplace{listings: map[string][]model.Listing{
			"kitchen": {{Name: "Chef Knife", ReviewCount: 12000, Rating: 4.8}},
		}},
		sentiment: &fakeSentiment{},
	}

	res, err := newTestOrchestrator(f).Run(context.Background(), Request{Seeds: []string{"kitchen"}})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageTrendsFetched, se.Stage)

	require.Len(t, res.Candidates, 1)
	c := res.Candidates[0]
	assert.Equal(t, "Chef Knife", c.Name)
	assert.Equal(t, model.OriginSeed, c.Origin)
	assert.Nil(t, c.Trend)
	assert.Nil(t, c.Sentiment, "empty sentiment is not attached")
	assert.Equal(t, model.SaturationVeryHigh, c.Marketplace.SaturationTier)
}

func TestRun_SkipTrends(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{})
	f.marketplace.listings["kitchen"] = []model.Listing{{Name: "Spice Rack", ReviewCount: 10, Rating: 4}}

	res, err := newTestOrchestrator(f).Run(context.Background(), Request{
		Seeds:   []string{"kitchen"},
		Options: Options{SkipTrends: true},
	})
	require.NoError(t, err)
	assert.Empty(t, f.trends.batches)

	rep, ok := res.Stage(StageTrendsFetched)
	require.True(t, ok)
	assert.True(t, rep.Skipped)
	assert.Equal(t, []string{"Spice Rack"}, names(res.Candidates))
	assert.Equal(t, 15.0+25+3+3, res.Candidates[0].ScoreValue())
}

func TestRun_TrendsBatchedByFive(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{})
	seeds := []string{"a", "b", "c", "d", "e", "f", "g"}

	_, err := newTestOrchestrator(f).Run(context.Background(), Request{Seeds: seeds, Options: Options{Sequential: true}})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c", "d", "e"}, {"f", "g"}}, f.trends.batches)
}

func TestRun_RetriesRateLimited(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{})
	f.marketplace.rateLimited = 2

	res, err := newTestOrchestrator(f).Run(context.Background(), Request{Seeds: []string{"kitchen"}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, f.marketplace.attempts)
	require.Len(t, res.Candidates, 1)
	assert.NotNil(t, res.Candidates[0].Marketplace)
}

func TestRun_MaxProductsCapsBeforeSentiment(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{})
	var listings []model.Listing
	for i := range 6 {
		listings = append(listings, model.Listing{Name: fmt.Sprintf("Fryer %d", i), ReviewCount: 5})
	}
	f.marketplace.listings["air fryer"] = listings

	res, err := newTestOrchestrator(f, WithProductsPerKeyword(10)).Run(context.Background(), Request{
		Seeds:   []string{"kitchen"},
		Options: Options{MaxProducts: 3},
	})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 3)
	assert.Len(t, f.sentiment.names, 3)
	assert.ElementsMatch(t, []string{"Fryer 0", "Fryer 1", "Fryer 2"}, f.sentiment.names)
}

func richFakes() fakes {
	f := fakes{
		trends: &fakeTrends{topics: map[string][]model.TrendTopic{
			"kitchen": {
				{Seed: "kitchen", Keyword: "air fryer", Direction: model.DirectionRising, Magnitude: 0.8},
				{Seed: "kitchen", Keyword: "stand mixer", Direction: model.DirectionStable, Magnitude: 0.4},
			},
			"fitness": {{Seed: "fitness", Keyword: "yoga mat", Direction: model.DirectionRising, Magnitude: 1.5}},
		}},
		marketplace: &fakeMarketplace{
			listings: map[string][]model.Listing{
				"air fryer":             {{Name: "Air Fryer", ReviewCount: 50, Rating: 4.5}, {Name: "Air Fryer XL", ReviewCount: 900, Rating: 4.1}},
				"air fryer accessories": {{Name: "  air fryer ", ReviewCount: 20}, {Name: "Fryer Liners", ReviewCount: 30, Rating: 4.6}},
				"yoga mat":              {{Name: "Yoga Mat", ReviewCount: 15000, Rating: 4.7}},
				"stand mixer":           {{Name: "Stand Mixer", ReviewCount: 2000, Rating: 4.4}},
			},
			errs: map[string]error{"yoga mat kit": errors.New("marketplace: 500")},
		},
		sentiment: &fakeSentiment{
			delay: time.Millisecond,
			signals: map[string]model.SentimentSignal{
				"Air Fryer":    {Polarity: 0.6, PostCount: 20, PositiveRatio: 0.85, PositivePosts: 17, NegativePosts: 3},
				"Fryer Liners": {Polarity: 0.3, PostCount: 4, PositiveRatio: 0.75, PositivePosts: 3, NegativePosts: 1},
				"Yoga Mat":     {Polarity: -0.2, PostCount: 9, PositiveRatio: 0.3, PositivePosts: 2, NegativePosts: 5},
			},
			errs: map[string]error{"Stand Mixer": errors.New("social: 502")},
		},
	}
	return f
}

func TestRun_SequentialMatchesParallel(t *testing.T) {
	req := Request{Seeds: []string{"kitchen", "fitness"}}

	seq := richFakes()
	seqRes, err := New(seq.set(), nil, nil, WithRetry(noSleepRetry())).Run(context.Background(),
		Request{Seeds: req.Seeds, Options: Options{Sequential: true}})
	require.NoError(t, err)

	par := richFakes()
	parRes, err := New(par.set(), nil, nil, WithRetry(noSleepRetry())).Run(context.Background(),
		Request{Seeds: req.Seeds, Options: Options{Concurrency: 4}})
	require.NoError(t, err)

	assert.Equal(t, seqRes.Candidates, parRes.Candidates)
	assert.Equal(t, 1, seq.sentiment.peakInFlight())
	assert.LessOrEqual(t, par.sentiment.peakInFlight(), 4)

	seqRep, _ := seqRes.Stage(StageSentimentGathered)
	parRep, _ := parRes.Stage(StageSentimentGathered)
	assert.Equal(t, seqRep.Succeeded, parRep.Succeeded)
	assert.Equal(t, 1, seqRep.Failed)
	assert.Len(t, seqRes.Failures, 2)

	// Ranked by score, highest first.
	for i := 1; i < len(seqRes.Candidates); i++ {
		assert.GreaterOrEqual(t, seqRes.Candidates[i-1].ScoreValue(), seqRes.Candidates[i].ScoreValue())
	}
}

func TestRun_ConcurrencyCapsSentimentFanOut(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{})
	var listings []model.Listing
	for i := range 8 {
		listings = append(listings, model.Listing{Name: fmt.Sprintf("Fryer %d", i)})
	}
	f.marketplace.listings["air fryer"] = listings
	f.sentiment.delay = 10 * time.Millisecond

	_, err := newTestOrchestrator(f).Run(context.Background(), Request{
		Seeds:   []string{"kitchen"},
		Options: Options{Concurrency: 2},
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, f.sentiment.peakInFlight(), 2)
	assert.Len(t, f.sentiment.names, 8)
}

func TestRun_Cancel(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{})
	f.marketplace.listings["air fryer"] = []model.Listing{{Name: "One"}, {Name: "Two"}, {Name: "Three"}}
	f.sentiment.block = make(chan struct{})
	f.sentiment.started = make(chan string, 10)

	o := newTestOrchestrator(f)
	go func() {
		<-f.sentiment.started
		o.Cancel()
	}()

	res, err := o.Run(context.Background(), Request{Seeds: []string{"kitchen"}, Options: Options{Sequential: true}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrStageTotalFailure)
	require.NotNil(t, res)

	assert.Len(t, res.Candidates, 3)
	for _, c := range res.Candidates {
		assert.Nil(t, c.Sentiment)
		assert.NotNil(t, c.Score)
	}
	assert.Len(t, f.sentiment.names, 1, "queued tasks never start")
	assert.Empty(t, res.Failures)
	assert.Contains(t, stageNames(res), StageScored)
	assert.NotContains(t, stageNames(res), StageDone)
}

func TestRun_ParentContextCancelled(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestOrchestrator(f).Run(ctx, Request{Seeds: []string{"kitchen"}})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Candidates)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	f := kitchenFakes(model.SentimentSignal{})
	f.sentiment.block = make(chan struct{})
	f.sentiment.started = make(chan string, 1)

	o := newTestOrchestrator(f)
	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), Request{Seeds: []string{"kitchen"}})
		done <- err
	}()
	<-f.sentiment.started

	_, err := o.Run(context.Background(), Request{Seeds: []string{"kitchen"}})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(f.sentiment.block)
	require.NoError(t, <-done)
}

func TestRun_Research(t *testing.T) {
	f := fakes{
		trends: &fakeTrends{interest: map[string]model.TrendTopic{
			"Air Fryer": {Direction: model.DirectionRising, Magnitude: 0.9},
			"Yoga Mat":  {Direction: model.DirectionFalling, Magnitude: -0.4},
		}},
		marketplace: &fakeMarketplace{listings: map[string][]model.Listing{
			"Air Fryer": {{Name: "Air Fryer Pro", ReviewCount: 50, Rating: 4.5}},
			"Yoga Mat":  {{Name: "Yoga Mat", ReviewCount: 20000, Rating: 4.6}},
		}},
		sentiment: &fakeSentiment{signals: map[string]model.SentimentSignal{
			"Air Fryer": {Polarity: 0.5, PostCount: 10, PositiveRatio: 0.9, PositivePosts: 9, NegativePosts: 1},
		}},
	}

	res, err := newTestOrchestrator(f).Run(context.Background(), Request{
		Products: []string{"Air Fryer", " air fryer", "Yoga Mat"},
	})
	require.NoError(t, err)
	assert.Equal(t, ModeResearch, res.Mode)
	assert.Equal(t, []string{"Air Fryer", "Yoga Mat"}, names(res.Candidates))

	air := res.Candidates[0]
	assert.Equal(t, model.OriginManual, air.Origin)
	assert.Equal(t, manualCategory, air.SourceCategory)
	require.NotNil(t, air.Trend)
	assert.Equal(t, model.DirectionRising, air.Trend.Direction)
	require.NotNil(t, air.Marketplace)
	assert.Equal(t, 1, air.Marketplace.ResultCount)

	mat := res.Candidates[1]
	require.NotNil(t, mat.Trend)
	assert.Equal(t, model.DirectionFalling, mat.Trend.Direction)
	assert.Equal(t, model.SaturationVeryHigh, mat.Marketplace.SaturationTier)

	rep, _ := res.Stage(StageKeywordsExpanded)
	assert.True(t, rep.Skipped)
	assert.ElementsMatch(t, []string{"Air Fryer", "Yoga Mat"}, f.marketplace.queries)
}

func TestRun_InvalidRequest(t *testing.T) {
	o := newTestOrchestrator(kitchenFakes(model.SentimentSignal{}))
	_, err := o.Run(context.Background(), Request{Seeds: []string{" ", ""}})
	assert.Error(t, err)

	bare := New(provider.Set{}, nil, nil)
	_, err = bare.Run(context.Background(), Request{Seeds: []string{"kitchen"}})
	assert.Error(t, err)
}

func TestRun_FixtureSources(t *testing.T) {
	fx, err := provider.LoadFixtures("../provider/testdata/fixtures.yaml")
	require.NoError(t, err)

	limiter := resilience.NewLimiter(nil, resilience.SourceLimits{MaxInFlight: 4},
		resilience.CircuitBreakerConfig{FailureThreshold: 3, Cooldown: time.Minute},
		[]time.Duration{time.Millisecond})
	guard := provider.NewGuard(limiter, nil)
	providers := provider.Set{
		Trends:      provider.NewTrends(fx.TrendsClient(), guard),
		Marketplace: provider.NewMarketplace(fx.MarketplaceClient(), guard),
		Sentiment:   provider.NewSentiment(fx.SocialClient(), guard),
	}

	res, err := New(providers, limiter, nil, WithRetry(noSleepRetry())).Run(context.Background(), Request{Seeds: []string{"kitchen"}})
	require.NoError(t, err)

	byID := make(map[string]model.Candidate)
	for _, c := range res.Candidates {
		byID[c.ID] = c
	}
	require.Contains(t, byID, "air fryer")
	air := byID["air fryer"]
	assert.Equal(t, "Air Fryer", air.Name)
	require.NotNil(t, air.Trend)
	assert.Equal(t, model.DirectionRising, air.Trend.Direction)
	require.NotNil(t, air.Sentiment)
	assert.Equal(t, 2, air.Sentiment.PostCount)

	assert.Contains(t, byID, "silicone air fryer liners")
	assert.Equal(t, model.NicheAccessory, byID["silicone air fryer liners"].Niche)
	assert.NotContains(t, byID, "how to clean an oven")

	kit, ok := byID["air fryer kit"]
	require.True(t, ok, "failed keyword stays a candidate")
	assert.Nil(t, kit.Marketplace)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "air fryer kit", res.Failures[0].Key)
	assert.Equal(t, "transient", res.Failures[0].ErrorType)

	var market resilience.SourceStats
	for _, s := range res.Sources {
		if s.Source == provider.SourceMarketplace {
			market = s
		}
	}
	assert.Equal(t, 1, market.Failures)
	assert.Equal(t, "closed", market.State)
}
