package provider

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/pkg/httpapi"
	"github.com/sells-group/niche-scout/pkg/marketplace"
	"github.com/sells-group/niche-scout/pkg/social"
	"github.com/sells-group/niche-scout/pkg/trends"
)

// Fixtures is an offline data set for all three sources. It implements the
// upstream client interfaces so fixture runs use the same providers, limiter,
// and breakers as live runs.
type Fixtures struct {
	Trends   map[string][]model.TrendTopic `yaml:"trends"`
	Interest map[string][]float64          `yaml:"interest"`
	Listings map[string][]model.Listing    `yaml:"listings"`
	Posts    map[string][]FixturePost      `yaml:"posts"`
	// Failures lists, per source, the queries that answer 503.
	Failures map[string][]string `yaml:"failures"`
}

// FixturePost is one canned discussion post.
type FixturePost struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Body    string `yaml:"body"`
	Upvotes int    `yaml:"upvotes"`
}

// LoadFixtures reads a fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read fixtures %s", path)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes fixture YAML. Keys are matched case-insensitively.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "provider: parse fixtures")
	}
	f.Trends = foldKeys(f.Trends)
	f.Interest = foldKeys(f.Interest)
	f.Listings = foldKeys(f.Listings)
	f.Posts = foldKeys(f.Posts)
	for src, keys := range f.Failures {
		for i, k := range keys {
			keys[i] = fixtureKey(k)
		}
		f.Failures[src] = keys
	}
	for seed, topics := range f.Trends {
		for i, t := range topics {
			if t.Direction == "" {
				topics[i].Direction = model.DirectionRising
			} else if !t.Direction.Valid() {
				return nil, eris.Errorf("provider: fixture trend %q has invalid direction %q", t.Keyword, t.Direction)
			}
		}
		f.Trends[seed] = topics
	}
	return &f, nil
}

func fixtureKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func foldKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[fixtureKey(k)] = v
	}
	return out
}

func (f *Fixtures) fails(source, query string) error {
	for _, k := range f.Failures[source] {
		if k == fixtureKey(query) {
			return &httpapi.StatusError{Service: source, StatusCode: http.StatusServiceUnavailable, Body: []byte("fixture failure")}
		}
	}
	return nil
}

// TrendsClient serves trend fixtures.
func (f *Fixtures) TrendsClient() trends.Client { return fixtureTrends{f} }

// MarketplaceClient serves listing fixtures.
func (f *Fixtures) MarketplaceClient() marketplace.Client { return fixtureMarketplace{f} }

// SocialClient serves post fixtures.
func (f *Fixtures) SocialClient() social.Client { return fixtureSocial{f} }

type fixtureTrends struct{ f *Fixtures }

func (c fixtureTrends) RelatedQueries(ctx context.Context, keywords []string) (*trends.RelatedResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := &trends.RelatedResponse{}
	for _, kw := range keywords {
		if err := c.f.fails(SourceTrends, kw); err != nil {
			return nil, err
		}
		r := trends.RelatedResult{Keyword: kw}
		for _, t := range c.f.Trends[fixtureKey(kw)] {
			q := trends.RelatedQuery{Query: t.Keyword, Value: t.Magnitude * 100}
			if t.Direction == model.DirectionRising {
				r.Rising = append(r.Rising, q)
			} else {
				r.Top = append(r.Top, q)
			}
		}
		resp.Results = append(resp.Results, r)
	}
	return resp, nil
}

func (c fixtureTrends) InterestOverTime(ctx context.Context, keywords []string) (*trends.InterestResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := &trends.InterestResponse{}
	for _, kw := range keywords {
		if err := c.f.fails(SourceTrends, kw); err != nil {
			return nil, err
		}
		for i, v := range c.f.Interest[fixtureKey(kw)] {
			for len(resp.Timeline) <= i {
				resp.Timeline = append(resp.Timeline, trends.InterestPoint{Time: int64(len(resp.Timeline)), Values: map[string]float64{}})
			}
			resp.Timeline[i].Values[kw] = v
		}
	}
	return resp, nil
}

type fixtureMarketplace struct{ f *Fixtures }

func (c fixtureMarketplace) Search(ctx context.Context, query string, limit int) (*marketplace.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.f.fails(SourceMarketplace, query); err != nil {
		return nil, err
	}
	listings := c.f.Listings[fixtureKey(query)]
	resp := &marketplace.SearchResponse{TotalResults: len(listings)}
	for _, l := range listings {
		if limit > 0 && len(resp.Products) == limit {
			break
		}
		resp.Products = append(resp.Products, marketplace.Product{Title: l.Name, ASIN: l.SKU, ReviewCount: l.ReviewCount, Rating: l.Rating})
	}
	return resp, nil
}

type fixtureSocial struct{ f *Fixtures }

func (c fixtureSocial) Search(ctx context.Context, query string, _ ...social.SearchOption) (*social.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.f.fails(SourceSentiment, query); err != nil {
		return nil, err
	}
	resp := &social.SearchResponse{}
	for _, p := range c.f.Posts[fixtureKey(query)] {
		resp.Data.Children = append(resp.Data.Children, social.Child{Data: social.Post{
			ID:       p.ID,
			Title:    p.Title,
			Selftext: p.Body,
			Score:    p.Upvotes,
		}})
	}
	return resp, nil
}
