package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

var (
	// ErrRateLimited means the call could not get a slot in time. The caller
	// may retry later in the same run.
	ErrRateLimited = eris.New("rate limited")

	// ErrCircuitOpen is returned when a call is rejected because the circuit
	// is open. Callers must not retry immediately.
	ErrCircuitOpen = eris.New("circuit breaker is open")

	// ErrTimeout means the per-call timeout elapsed.
	ErrTimeout = eris.New("call timed out")

	// ErrParse means the upstream payload could not be decoded or validated.
	ErrParse = eris.New("malformed upstream payload")
)

// UpstreamError is a non-success HTTP status from a source. RetryAfter is
// the wait the source asked for, zero when it sent none.
type UpstreamError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// NewUpstreamError builds an UpstreamError, truncating long bodies.
func NewUpstreamError(status int, body []byte) *UpstreamError {
	const maxBody = 256
	b := string(body)
	if len(b) > maxBody {
		b = b[:maxBody]
	}
	return &UpstreamError{Status: status, Body: b}
}

// ParseError wraps a decoding or validation failure as ErrParse.
func ParseError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", msg, ErrParse, err)
	}
	return fmt.Errorf("%s: %w", msg, ErrParse)
}

// RetryAfterOf returns the wait requested by the upstream behind err.
func RetryAfterOf(err error) time.Duration {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.RetryAfter
	}
	return 0
}

// IsBlocked reports whether the source refused the client (403), which
// usually means it detected automated traffic.
func IsBlocked(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Status == http.StatusForbidden
}

// IsRateLimited reports whether err means "retry later".
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsCircuitOpen reports whether err is a circuit rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsTransient reports whether err is a failure that may succeed later:
// rate limiting, timeouts, network timeouts, or transient HTTP statuses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return IsTransientHTTPStatus(ue.Status)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// OutcomeFor maps a call error onto the outcome reported to the limiter.
// Cancellation of the caller's context never counts against the source.
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		switch {
		case ue.Status == http.StatusTooManyRequests:
			return OutcomeRateLimited
		case ue.Status == http.StatusForbidden:
			return OutcomeBlocked
		}
		if IsTransientHTTPStatus(ue.Status) {
			return OutcomeTransientError
		}
		return OutcomePermanentError
	}
	if errors.Is(err, ErrParse) {
		return OutcomePermanentError
	}
	return OutcomeTransientError
}
