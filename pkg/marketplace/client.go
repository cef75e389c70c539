// Package marketplace provides a client for a marketplace product-search API.
package marketplace

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
	defaultBaseURL = "https://marketplace.example-api.com/v1"
	service        = "marketplace"
)

// Client performs marketplace search operations.
type Client interface {
	Search(ctx context.Context, query string, limit int) (*SearchResponse, error)
}

// SearchResponse is the response from product search.
type SearchResponse struct {
	TotalResults int       `json:"total_results"`
	Products     []Product `json:"products"`
}

// Product is one search result.
type Product struct {
	Title       string  `json:"title"`
	ASIN        string  `json:"asin"`
	ReviewCount int     `json:"review_count"`
	Rating      float64 `json:"rating"`
	Price       float64 `json:"price"`
	Sponsored   bool    `json:"sponsored"`
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

// WithUserAgent sets the User-Agent header.
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

// NewClient creates a marketplace search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    httpapi.NewHTTPClient(30 * time.Second),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	if query == "" {
		return nil, eris.New("marketplace: empty query")
	}

	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "marketplace: create request")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var result SearchResponse
	if err := httpapi.GetJSON(ctx, c.http, service, req, &result); err != nil {
		return nil, err
	}

	// Some upstreams ignore the limit parameter.
	if limit > 0 && len(result.Products) > limit {
		result.Products = result.Products[:limit]
	}
	return &result, nil
}
