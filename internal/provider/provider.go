// Package provider wraps each upstream source behind a typed contract. Every
// call goes through the run's Limiter and carries its own timeout; providers
// never retry on their own.
package provider

import (
	"context"

	"github.com/sells-group/niche-scout/internal/model"
)

// Source names, also used as Limiter keys.
const (
	SourceTrends      = "trends"
	SourceMarketplace = "marketplace"
	SourceSentiment   = "sentiment"
)

// Sources lists every source in pipeline order.
func Sources() []string {
	return []string{SourceTrends, SourceMarketplace, SourceSentiment}
}

// FetchOptions carries per-call parameters set by the orchestrator.
type FetchOptions struct {
	// Attempt is the 1-based attempt number, recorded on the SourceCall.
	Attempt int
	// Fallback is an alternate query used when the primary one returns too
	// little data. Only the sentiment provider uses it.
	Fallback string
}

func (o FetchOptions) attempt() int {
	return max(o.Attempt, 1)
}

// TrendsProvider returns trend topics.
type TrendsProvider interface {
	// Fetch returns related topics for up to five seed keywords.
	Fetch(ctx context.Context, seeds []string, opts FetchOptions) ([]model.TrendTopic, error)
	// Check returns the interest direction of each keyword itself.
	Check(ctx context.Context, keywords []string, opts FetchOptions) ([]model.TrendTopic, error)
}

// MarketplaceProvider searches marketplace listings.
type MarketplaceProvider interface {
	Search(ctx context.Context, keyword string, limit int, opts FetchOptions) ([]model.Listing, error)
}

// SentimentProvider summarizes social discussion about a product.
type SentimentProvider interface {
	Fetch(ctx context.Context, productName string, opts FetchOptions) (model.SentimentSignal, error)
}

// Set bundles one provider per source.
type Set struct {
	Trends      TrendsProvider
	Marketplace MarketplaceProvider
	Sentiment   SentimentProvider
}
