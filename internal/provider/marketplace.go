package provider

import (
	"context"
	"strings"

	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/pkg/marketplace"
)

// Marketplace adapts a marketplace.Client to MarketplaceProvider.
type Marketplace struct {
	client marketplace.Client
	guard  *Guard
}

// NewMarketplace creates a marketplace provider.
func NewMarketplace(client marketplace.Client, guard *Guard) *Marketplace {
	return &Marketplace{client: client, guard: guard}
}

// Search returns up to limit organic listings for keyword.
func (m *Marketplace) Search(ctx context.Context, keyword string, limit int, opts FetchOptions) ([]model.Listing, error) {
	resp, err := Call(ctx, m.guard, SourceMarketplace, opts.attempt(), func(ctx context.Context) (*marketplace.SearchResponse, error) {
		resp, err := m.client.Search(ctx, keyword, limit)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, resilience.ParseError(nil, "marketplace: empty response for %q", keyword)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	listings := make([]model.Listing, 0, len(resp.Products))
	for _, p := range resp.Products {
		name := strings.TrimSpace(p.Title)
		if name == "" || p.Sponsored {
			continue
		}
		listings = append(listings, model.Listing{
			Name:        name,
			SKU:         p.ASIN,
			ReviewCount: max(p.ReviewCount, 0),
			Rating:      min(max(p.Rating, 0), 5),
		})
		if limit > 0 && len(listings) == limit {
			break
		}
	}
	return listings, nil
}

// Summarize derives the competition signal for a keyword from its listings.
func Summarize(listings []model.Listing) model.MarketplaceSignal {
	sig := model.MarketplaceSignal{ResultCount: len(listings)}
	if len(listings) == 0 {
		sig.SaturationTier = model.SaturationVeryLow
		return sig
	}

	var reviews, rated int
	var ratingSum float64
	for _, l := range listings {
		reviews += l.ReviewCount
		sig.MaxReviewCount = max(sig.MaxReviewCount, l.ReviewCount)
		if l.Rating > 0 {
			ratingSum += l.Rating
			rated++
		}
	}
	sig.AvgReviewCount = float64(reviews) / float64(len(listings))
	if rated > 0 {
		sig.AvgRating = ratingSum / float64(rated)
	}
	sig.SaturationTier = SaturationFor(sig.MaxReviewCount, sig.AvgReviewCount)
	return sig
}

// SaturationFor maps review counts onto a saturation tier. Heavily reviewed
// top listings mean entrenched competition.
func SaturationFor(maxReviews int, avgReviews float64) model.SaturationTier {
	switch {
	case maxReviews > 10000 || avgReviews > 3000:
		return model.SaturationVeryHigh
	case maxReviews > 5000 || avgReviews > 1500:
		return model.SaturationHigh
	case maxReviews > 1000 || avgReviews > 500:
		return model.SaturationMedium
	case maxReviews > 200 || avgReviews > 25:
		return model.SaturationLow
	default:
		return model.SaturationVeryLow
	}
}
