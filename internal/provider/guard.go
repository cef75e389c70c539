package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/pkg/httpapi"
)

// DefaultTimeout applies to sources without a configured timeout.
const DefaultTimeout = 30 * time.Second

// Guard runs upstream calls through the Limiter with a per-call timeout.
type Guard struct {
	limiter  *resilience.Limiter
	timeouts map[string]time.Duration
}

// NewGuard creates a guard. timeouts may be nil.
func NewGuard(limiter *resilience.Limiter, timeouts map[string]time.Duration) *Guard {
	return &Guard{limiter: limiter, timeouts: timeouts}
}

// Limiter returns the limiter the guard reports to.
func (g *Guard) Limiter() *resilience.Limiter {
	return g.limiter
}

func (g *Guard) timeout(source string) time.Duration {
	if d, ok := g.timeouts[source]; ok && d > 0 {
		return d
	}
	return DefaultTimeout
}

// Call acquires a permit for source, runs fn under the source's timeout,
// and reports the outcome. A caller that gives up (ctx done) is reported as
// cancelled, never as a source failure.
func Call[T any](ctx context.Context, g *Guard, source string, attempt int, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	permit, err := g.limiter.Acquire(ctx, source)
	if err != nil {
		return zero, err
	}
	permit.Attempt = attempt

	callCtx, cancel := context.WithTimeout(ctx, g.timeout(source))
	defer cancel()

	v, err := fn(callCtx)
	err = classify(ctx, callCtx, source, err)

	outcome := resilience.OutcomeFor(err)
	if err != nil && ctx.Err() != nil {
		outcome = resilience.OutcomeCancelled
	}
	permit.RetryAfter = resilience.RetryAfterOf(err)
	g.limiter.Report(permit, outcome)

	if err != nil {
		zap.L().Debug("provider: call failed",
			zap.String("source", source),
			zap.Int("attempt", attempt),
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
		return zero, err
	}
	return v, nil
}

// classify maps client errors onto the resilience taxonomy.
func classify(ctx, callCtx context.Context, source string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrapf(resilience.ErrTimeout, "%s", source)
	}

	var se *httpapi.StatusError
	if errors.As(err, &se) {
		ue := resilience.NewUpstreamError(se.StatusCode, se.Body)
		ue.RetryAfter = se.RetryAfter
		if se.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%s: %w: %w", source, resilience.ErrRateLimited, ue)
		}
		return fmt.Errorf("%s: %w", source, ue)
	}
	if errors.Is(err, httpapi.ErrDecode) {
		return resilience.ParseError(err, "%s", source)
	}
	return err
}
