// Package httpapi holds the request plumbing shared by the upstream JSON
// clients: one request, one response, no retries.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrDecode is returned when a response body is not the expected JSON.
var ErrDecode = eris.New("httpapi: decode response")

// StatusError is a non-2xx response. RetryAfter holds the parsed
// Retry-After header, zero when absent or invalid.
type StatusError struct {
	Service    string
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, body)
}

// NewHTTPClient returns the pooled client the upstream clients default to.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// GetJSON sends req and decodes a 200 response into out.
func GetJSON(ctx context.Context, hc *http.Client, service string, req *http.Request, out any) error {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s: send request", service)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "%s: read response", service)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       body,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %w", service, ErrDecode, err)
	}
	return nil
}

// ParseRetryAfter reads a Retry-After value given either as delay seconds or
// as an HTTP date. Dates in the past yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}
