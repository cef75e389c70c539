package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionValid(t *testing.T) {
	assert.True(t, DirectionRising.Valid())
	assert.True(t, DirectionStable.Valid())
	assert.True(t, DirectionFalling.Valid())
	assert.False(t, Direction("sideways").Valid())
	assert.False(t, Direction("").Valid())
}

func TestNegativeDominant(t *testing.T) {
	tests := []struct {
		name string
		sig  SentimentSignal
		want bool
	}{
		{"more negative posts", SentimentSignal{PostCount: 10, PositivePosts: 2, NegativePosts: 5}, true},
		{"tie", SentimentSignal{PostCount: 10, PositivePosts: 3, NegativePosts: 3}, false},
		{"more positive posts", SentimentSignal{PostCount: 10, PositivePosts: 6, NegativePosts: 1}, false},
		{"ratio only, low", SentimentSignal{PostCount: 4, PositiveRatio: 0.25}, true},
		{"ratio only, high", SentimentSignal{PostCount: 4, PositiveRatio: 0.8}, false},
		{"no posts", SentimentSignal{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sig.NegativeDominant())
		})
	}
}

func TestCandidateSignals(t *testing.T) {
	var c Candidate
	assert.False(t, c.HasSignals())
	assert.False(t, c.RisingTrend())
	assert.Zero(t, c.ScoreValue())

	c.Trend = &TrendSignal{Direction: DirectionStable}
	assert.True(t, c.HasSignals())
	assert.False(t, c.RisingTrend())

	c.Trend.Direction = DirectionRising
	assert.True(t, c.RisingTrend())

	score := 61.5
	c.Score = &score
	assert.Equal(t, 61.5, c.ScoreValue())
}

func TestCandidateClone(t *testing.T) {
	score := 40.0
	orig := Candidate{
		ID:          "air fryer",
		Name:        "Air Fryer",
		Trend:       &TrendSignal{Keyword: "air fryer", Direction: DirectionRising, Magnitude: 0.8},
		Marketplace: &MarketplaceSignal{ResultCount: 3, SaturationTier: SaturationLow},
		Sentiment:   &SentimentSignal{PostCount: 7},
		Score:       &score,
	}

	cp := orig.Clone()
	assert.Equal(t, orig, cp)

	cp.Trend.Magnitude = 0
	cp.Marketplace.ResultCount = 0
	cp.Sentiment.PostCount = 0
	*cp.Score = 0

	assert.Equal(t, 0.8, orig.Trend.Magnitude)
	assert.Equal(t, 3, orig.Marketplace.ResultCount)
	assert.Equal(t, 7, orig.Sentiment.PostCount)
	assert.Equal(t, 40.0, *orig.Score)

	assert.Nil(t, Candidate{}.Clone().Trend)
}
