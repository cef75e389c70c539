package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/niche-scout/pkg/social"
	"github.com/sells-group/niche-scout/pkg/social/mocks"
)

func posts(ids ...string) *social.SearchResponse {
	resp := &social.SearchResponse{}
	for _, id := range ids {
		resp.Data.Children = append(resp.Data.Children, social.Child{Data: social.Post{ID: id, Title: "love it", Score: 1}})
	}
	return resp
}

func constScorer(v float64) func(string) float64 {
	return func(string) float64 { return v }
}

func TestSentiment_FetchPrimaryOnly(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "Air Fryer", mock.Anything).Return(posts("a", "b", "c", "d", "e"), nil)

	sig, err := NewSentiment(client, newTestGuard(3), WithScorer(constScorer(0.6))).
		Fetch(context.Background(), "Air Fryer", FetchOptions{Fallback: "air fryer accessories"})
	require.NoError(t, err)
	assert.Equal(t, 5, sig.PostCount)
	assert.InDelta(t, 0.6, sig.Polarity, 1e-9)
	assert.InDelta(t, 1.0, sig.PositiveRatio, 1e-9)
	client.AssertNumberOfCalls(t, "Search", 1)
}

func TestSentiment_FallbackMergesAndDedupes(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "Silicone Liners", mock.Anything).Return(posts("a", "b"), nil)
	client.On("Search", mock.Anything, "air fryer accessories", mock.Anything).Return(posts("b", "c", ""), nil)

	sig, err := NewSentiment(client, newTestGuard(3), WithScorer(constScorer(-0.5))).
		Fetch(context.Background(), "Silicone Liners", FetchOptions{Fallback: "air fryer accessories"})
	require.NoError(t, err)
	assert.Equal(t, 4, sig.PostCount)
	assert.Equal(t, 4, sig.NegativePosts)
	assert.True(t, sig.NegativeDominant())
}

func TestSentiment_FallbackSkippedWhenSameQuery(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "yoga mat", mock.Anything).Return(posts("a"), nil).Once()

	sig, err := NewSentiment(client, newTestGuard(3)).
		Fetch(context.Background(), "yoga mat", FetchOptions{Fallback: " Yoga Mat "})
	require.NoError(t, err)
	assert.Equal(t, 1, sig.PostCount)
}

func TestSentiment_FallbackFailureKeepsPrimary(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "Air Fryer", mock.Anything).Return(posts("a"), nil)
	client.On("Search", mock.Anything, "air fryer", mock.Anything).Return(nil, errors.New("boom"))

	sig, err := NewSentiment(client, newTestGuard(3)).
		Fetch(context.Background(), "Air Fryer", FetchOptions{Fallback: "air fryer"})
	require.NoError(t, err)
	assert.Equal(t, 1, sig.PostCount)
}

func TestSentiment_FallbackSearchedWhenPrimaryEmpty(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "Liner Pro", mock.Anything).Return(posts(), nil)
	client.On("Search", mock.Anything, "liners", mock.Anything).Return(posts("x", "y"), nil)

	sig, err := NewSentiment(client, newTestGuard(3)).
		Fetch(context.Background(), "Liner Pro", FetchOptions{Fallback: "liners"})
	require.NoError(t, err)
	assert.Equal(t, 2, sig.PostCount)
}

func TestSentiment_PrimaryErrorReturned(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "Air Fryer", mock.Anything).Return(nil, errors.New("dial tcp: refused"))

	_, err := NewSentiment(client, newTestGuard(3)).
		Fetch(context.Background(), "Air Fryer", FetchOptions{Fallback: "air fryer"})
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "Search", 1)
}

func TestSentiment_NilResponseIsParseError(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "Air Fryer", mock.Anything).Return(nil, nil)

	g := newTestGuard(3)
	_, err := NewSentiment(client, g).Fetch(context.Background(), "Air Fryer", FetchOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, statsFor(t, g.Limiter(), SourceSentiment).Failures)
}
