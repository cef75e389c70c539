// Package trends provides a client for a search-interest trends API that
// exposes related rising queries and interest-over-time series.
package trends

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/niche-scout/pkg/httpapi"
)

const (
	defaultBaseURL = "https://trends.example-api.com/v1"
	service        = "trends"

	// MaxKeywords is the most keywords one comparison request accepts.
	MaxKeywords = 5
)

// Client defines the trends API operations.
type Client interface {
	// RelatedQueries returns rising and top related queries for each keyword.
	RelatedQueries(ctx context.Context, keywords []string) (*RelatedResponse, error)
	// InterestOverTime returns a relative interest series for each keyword.
	InterestOverTime(ctx context.Context, keywords []string) (*InterestResponse, error)
}

// RelatedResponse is the related-queries payload.
type RelatedResponse struct {
	Results []RelatedResult `json:"results"`
}

// RelatedResult holds the related queries for one requested keyword.
type RelatedResult struct {
	Keyword string         `json:"keyword"`
	Rising  []RelatedQuery `json:"rising"`
	Top     []RelatedQuery `json:"top"`
}

// RelatedQuery is one related search. Value is the growth percentage for
// rising queries and the relative volume (0-100) for top queries.
type RelatedQuery struct {
	Query string  `json:"query"`
	Value float64 `json:"value"`
}

// InterestResponse is the interest-over-time payload.
type InterestResponse struct {
	Timeline []InterestPoint `json:"timeline"`
}

// InterestPoint is one sample of relative interest per keyword.
type InterestPoint struct {
	Time   int64              `json:"time"`
	Values map[string]float64 `json:"values"`
}

// Series returns the interest samples for keyword in time order.
func (r *InterestResponse) Series(keyword string) []float64 {
	out := make([]float64, 0, len(r.Timeline))
	for _, p := range r.Timeline {
		if v, ok := p.Values[keyword]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithGeo sets the region filter. Default: US.
func WithGeo(geo string) Option {
	return func(c *httpClient) {
		c.geo = geo
	}
}

// WithTimeframe sets the lookback window. Default: "today 3-m".
func WithTimeframe(tf string) Option {
	return func(c *httpClient) {
		c.timeframe = tf
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	geo       string
	timeframe string
	http      *http.Client
}

// NewClient creates a trends API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		geo:       "US",
		timeframe: "today 3-m",
		http:      httpapi.NewHTTPClient(30 * time.Second),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) RelatedQueries(ctx context.Context, keywords []string) (*RelatedResponse, error) {
	req, err := c.newRequest(ctx, "/related_queries", keywords)
	if err != nil {
		return nil, err
	}
	var result RelatedResponse
	if err := httpapi.GetJSON(ctx, c.http, service, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) InterestOverTime(ctx context.Context, keywords []string) (*InterestResponse, error) {
	req, err := c.newRequest(ctx, "/interest_over_time", keywords)
	if err != nil {
		return nil, err
	}
	var result InterestResponse
	if err := httpapi.GetJSON(ctx, c.http, service, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) newRequest(ctx context.Context, path string, keywords []string) (*http.Request, error) {
	if len(keywords) == 0 {
		return nil, eris.New("trends: no keywords")
	}
	if len(keywords) > MaxKeywords {
		return nil, eris.Errorf("trends: at most %d keywords per request, got %d", MaxKeywords, len(keywords))
	}

	q := url.Values{}
	q.Set("keywords", strings.Join(keywords, ","))
	q.Set("geo", c.geo)
	q.Set("timeframe", c.timeframe)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "trends: create request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}
