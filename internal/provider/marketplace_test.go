package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/pkg/marketplace"
	"github.com/sells-group/niche-scout/pkg/marketplace/mocks"
)

func TestMarketplace_Search(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "air fryer", 2).Return(&marketplace.SearchResponse{
		TotalResults: 4,
		Products: []marketplace.Product{
			{Title: "Sponsored Fryer", ReviewCount: 9999, Sponsored: true},
			{Title: " Air Fryer ", ASIN: "B01", ReviewCount: 50, Rating: 4.5},
			{Title: "", ReviewCount: 3},
			{Title: "Air Fryer XL", ASIN: "B02", ReviewCount: -4, Rating: 7},
		},
	}, nil)

	listings, err := NewMarketplace(client, newTestGuard(3)).Search(context.Background(), "air fryer", 2, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []model.Listing{
		{Name: "Air Fryer", SKU: "B01", ReviewCount: 50, Rating: 4.5},
		{Name: "Air Fryer XL", SKU: "B02", ReviewCount: 0, Rating: 5},
	}, listings)
}

func TestMarketplace_SearchError(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "yoga mat", 10).Return(nil, errors.New("connection refused"))

	g := newTestGuard(3)
	_, err := NewMarketplace(client, g).Search(context.Background(), "yoga mat", 10, FetchOptions{Attempt: 3})
	require.Error(t, err)

	s := statsFor(t, g.Limiter(), SourceMarketplace)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, 3, s.LastCall.Attempt)
}

func TestSummarize(t *testing.T) {
	sig := Summarize([]model.Listing{
		{Name: "a", ReviewCount: 50, Rating: 4.5},
		{Name: "b", ReviewCount: 10, Rating: 0},
		{Name: "c", ReviewCount: 0, Rating: 3.5},
	})
	assert.Equal(t, 3, sig.ResultCount)
	assert.Equal(t, 50, sig.MaxReviewCount)
	assert.InDelta(t, 20, sig.AvgReviewCount, 1e-9)
	assert.InDelta(t, 4.0, sig.AvgRating, 1e-9)
	assert.Equal(t, model.SaturationVeryLow, sig.SaturationTier)

	empty := Summarize(nil)
	assert.Zero(t, empty.ResultCount)
	assert.Equal(t, model.SaturationVeryLow, empty.SaturationTier)
}

func TestSummarize_SingleListingLowTier(t *testing.T) {
	sig := Summarize([]model.Listing{{Name: "Air Fryer", ReviewCount: 50, Rating: 4.5}})
	assert.Equal(t, model.SaturationLow, sig.SaturationTier)
}

func TestSaturationFor(t *testing.T) {
	tests := []struct {
		max  int
		avg  float64
		want model.SaturationTier
	}{
		{20000, 100, model.SaturationVeryHigh},
		{100, 3500, model.SaturationVeryHigh},
		{6000, 100, model.SaturationHigh},
		{100, 1600, model.SaturationHigh},
		{1200, 100, model.SaturationMedium},
		{100, 600, model.SaturationMedium},
		{300, 10, model.SaturationLow},
		{50, 50, model.SaturationLow},
		{200, 25, model.SaturationVeryLow},
		{0, 0, model.SaturationVeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SaturationFor(tt.max, tt.avg), "max=%d avg=%.0f", tt.max, tt.avg)
	}
}
