// Package social provides a client for a discussion-forum search API with a
// listing-style JSON response.
package social

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/niche-scout/pkg/httpapi"
)

const (
	defaultBaseURL = "https://social.example-api.com/v1"
	service        = "social"

	// MaxLimit is the most posts one search returns.
	MaxLimit = 100
)

// Client defines the discussion search operations.
type Client interface {
	// Search finds posts matching query across all communities.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// SearchResponse is the listing payload.
type SearchResponse struct {
	Data Listing `json:"data"`
}

// Listing wraps the returned posts.
type Listing struct {
	Children []Child `json:"children"`
}

// Child wraps one post.
type Child struct {
	Data Post `json:"data"`
}

// Post is one discussion post.
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
}

// Posts flattens the listing.
func (r *SearchResponse) Posts() []Post {
	out := make([]Post, 0, len(r.Data.Children))
	for _, c := range r.Data.Children {
		out = append(out, c.Data)
	}
	return out
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	limit      int
	sort       string
	timeFilter string
}

// WithLimit caps the number of posts returned. Default: 25.
func WithLimit(n int) SearchOption {
	return func(o *searchOpts) {
		o.limit = n
	}
}

// WithSort sets the sort order. Default: relevance.
func WithSort(sort string) SearchOption {
	return func(o *searchOpts) {
		o.sort = sort
	}
}

// WithTimeFilter restricts results by age ("week", "month", "year", "all").
// Default: year.
func WithTimeFilter(tf string) SearchOption {
	return func(o *searchOpts) {
		o.timeFilter = tf
	}
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

// WithUserAgent sets the User-Agent header. Forum APIs reject blank agents.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a discussion search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		userAgent: "niche-scout/1.0",
		http:      httpapi.NewHTTPClient(15 * time.Second),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	if query == "" {
		return nil, eris.New("social: empty query")
	}

	so := &searchOpts{limit: 25, sort: "relevance", timeFilter: "year"}
	for _, opt := range opts {
		opt(so)
	}
	if so.limit <= 0 || so.limit > MaxLimit {
		so.limit = MaxLimit
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", so.sort)
	q.Set("t", so.timeFilter)
	q.Set("limit", strconv.Itoa(so.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "social: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var result SearchResponse
	if err := httpapi.GetJSON(ctx, c.http, service, req, &result); err != nil {
		return nil, err
	}
	if len(result.Data.Children) > so.limit {
		result.Data.Children = result.Data.Children[:so.limit]
	}
	return &result, nil
}
