package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/provider"
	"github.com/sells-group/niche-scout/internal/resilience"
)

// fakeTrends implements provider.TrendsProvider for testing.
type fakeTrends struct {
	mu       sync.Mutex
	topics   map[string][]model.TrendTopic
	interest map[string]model.TrendTopic
	err      error
	batches  [][]string
}

func (f *fakeTrends) Fetch(ctx context.Context, seeds []string, _ provider.FetchOptions) ([]model.TrendTopic, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), seeds...))
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []model.TrendTopic
	for _, s := range seeds {
		out = append(out, f.topics[s]...)
	}
	return out, nil
}

func (f *fakeTrends) Check(ctx context.Context, keywords []string, _ provider.FetchOptions) ([]model.TrendTopic, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), keywords...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.TrendTopic
	for _, k := range keywords {
		if t, ok := f.interest[k]; ok {
			t.Keyword = k
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeMarketplace implements provider.MarketplaceProvider for testing.
type fakeMarketplace struct {
	mu       sync.Mutex
	listings map[string][]model.Listing
	errs     map[string]error
	err      error
	// rateLimited counts down calls that fail with ErrRateLimited.
	rateLimited int
	queries     []string
	attempts    []int
}

func (f *fakeMarketplace) Search(ctx context.Context, keyword string, limit int, opts provider.FetchOptions) ([]model.Listing, error) {
	f.mu.Lock()
	f.queries = append(f.queries, keyword)
	f.attempts = append(f.attempts, opts.Attempt)
	limited := f.rateLimited > 0
	if limited {
		f.rateLimited--
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limited {
		return nil, resilience.ErrRateLimited
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := f.errs[keyword]; err != nil {
		return nil, err
	}
	l := f.listings[keyword]
	if limit > 0 && len(l) > limit {
		l = l[:limit]
	}
	return l, nil
}

func (f *fakeMarketplace) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// fakeSentiment implements provider.SentimentProvider for testing.
type fakeSentiment struct {
	mu      sync.Mutex
	signals map[string]model.SentimentSignal
	errs    map[string]error
	delay   time.Duration
	// started, when set, receives the product name as each call begins.
	started chan string
	// block, when set, holds every call until it is closed or ctx is done.
	block chan struct{}

	names     []string
	fallbacks map[string]string
	inFlight  int
	peak      int
}

func (f *fakeSentiment) Fetch(ctx context.Context, productName string, opts provider.FetchOptions) (model.SentimentSignal, error) {
	f.mu.Lock()
	f.names = append(f.names, productName)
	if f.fallbacks == nil {
		f.fallbacks = make(map[string]string)
	}
	f.fallbacks[productName] = opts.Fallback
	f.inFlight++
	f.peak = max(f.peak, f.inFlight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.started != nil {
		f.started <- productName
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return model.SentimentSignal{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.SentimentSignal{}, ctx.Err()
		}
	}
	if err := f.errs[productName]; err != nil {
		return model.SentimentSignal{}, err
	}
	return f.signals[productName], nil
}

func (f *fakeSentiment) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func noSleepRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: 3,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}
