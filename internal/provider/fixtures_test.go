package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/pkg/httpapi"
)

func loadTestFixtures(t *testing.T) *Fixtures {
	t.Helper()
	f, err := LoadFixtures("testdata/fixtures.yaml")
	require.NoError(t, err)
	return f
}

func TestLoadFixtures(t *testing.T) {
	f := loadTestFixtures(t)

	require.Contains(t, f.Trends, "kitchen")
	assert.Equal(t, model.DirectionRising, f.Trends["kitchen"][0].Direction)
	assert.Contains(t, f.Interest, "air fryer")
	assert.Contains(t, f.Listings, "air fryer accessories")
	assert.Equal(t, []string{"air fryer kit"}, f.Failures[SourceMarketplace])
}

func TestLoadFixtures_MissingFile(t *testing.T) {
	_, err := LoadFixtures("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestParseFixtures_InvalidDirection(t *testing.T) {
	_, err := ParseFixtures([]byte(`
trends:
  kitchen:
    - keyword: air fryer
      direction: sideways
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sideways")
}

func TestParseFixtures_InvalidYAML(t *testing.T) {
	_, err := ParseFixtures([]byte("trends: [unclosed"))
	assert.Error(t, err)
}

func TestFixtures_ThroughProviders(t *testing.T) {
	f := loadTestFixtures(t)
	g := newTestGuard(3)
	ctx := context.Background()

	topics, err := NewTrends(f.TrendsClient(), g).Fetch(ctx, []string{"Kitchen"}, FetchOptions{})
	require.NoError(t, err)
	var keywords []string
	for _, tp := range topics {
		keywords = append(keywords, tp.Keyword)
	}
	assert.Contains(t, keywords, "air fryer")

	listings, err := NewMarketplace(f.MarketplaceClient(), g).Search(ctx, "Air Fryer Accessories", 10, FetchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, listings)
	assert.Equal(t, "air fryer", listings[0].Name)

	sig, err := NewSentiment(f.SocialClient(), g).Fetch(ctx, "air fryer", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, sig.PostCount)

	checked, err := NewTrends(f.TrendsClient(), g).Check(ctx, []string{"Air Fryer"}, FetchOptions{})
	require.NoError(t, err)
	require.Len(t, checked, 1)
	assert.Equal(t, model.DirectionRising, checked[0].Direction)
}

func TestFixtures_ConfiguredFailureIsTransient(t *testing.T) {
	f := loadTestFixtures(t)
	g := newTestGuard(3)

	_, err := NewMarketplace(f.MarketplaceClient(), g).Search(context.Background(), "air fryer kit", 10, FetchOptions{})
	require.Error(t, err)

	var se *httpapi.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.StatusCode)
	assert.Equal(t, resilience.OutcomeTransientError, resilience.OutcomeFor(err))
}
