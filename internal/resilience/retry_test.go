package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	got, err := Retry(context.Background(), RetryConfig{Sleep: noSleep}, func(_ context.Context, attempt int) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want \"ok\" after 1", got, calls)
	}
}

func TestRetry_RetriesRateLimited(t *testing.T) {
	var attempts []int
	got, err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: noSleep}, func(_ context.Context, attempt int) (int, error) {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return 0, ErrRateLimited
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Errorf("expected attempts 1..3, got %v", attempts)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), RetryConfig{MaxAttempts: 2, Sleep: noSleep}, func(_ context.Context, _ int) (struct{}, error) {
		calls++
		return struct{}{}, ErrRateLimited
	})
	if !IsRateLimited(err) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetry_NeverRetriesCircuitOpen(t *testing.T) {
	var calls int
	cfg := RetryConfig{MaxAttempts: 5, Sleep: noSleep, ShouldRetry: func(error) bool { return true }}
	_, err := Retry(context.Background(), cfg, func(_ context.Context, _ int) (int, error) {
		calls++
		return 0, ErrCircuitOpen
	})
	if !IsCircuitOpen(err) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_DoesNotRetryPermanent(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: noSleep}, func(_ context.Context, _ int) (int, error) {
		calls++
		return 0, NewUpstreamError(404, nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	_, err := Retry(ctx, RetryConfig{MaxAttempts: 5, Sleep: noSleep}, func(_ context.Context, _ int) (int, error) {
		calls++
		cancel()
		return 0, ErrRateLimited
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_SleepErrorStopsRetries(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts: 3,
		Sleep:       func(context.Context, time.Duration) error { return context.DeadlineExceeded },
	}
	_, err := Retry(context.Background(), cfg, func(_ context.Context, _ int) (int, error) {
		calls++
		return 0, ErrRateLimited
	})
	if !IsRateLimited(err) {
		t.Fatalf("expected last call error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_OnRetryAndBackoff(t *testing.T) {
	var (
		retried []int
		delays  []time.Duration
	)
	cfg := RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		Multiplier:     2,
		OnRetry:        func(attempt int, _ error) { retried = append(retried, attempt) },
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}
	_, _ = Retry(context.Background(), cfg, func(_ context.Context, _ int) (int, error) {
		return 0, ErrRateLimited
	})

	if len(retried) != 3 {
		t.Fatalf("expected 3 retries, got %v", retried)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if !equalDurations(delays, want) {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestComputeBackoff_JitterStaysInRange(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: 10 * time.Second, JitterFraction: 0.1})
	for i := 0; i < 100; i++ {
		d := computeBackoff(0, cfg)
		if d < 9*time.Second || d > 11*time.Second {
			t.Fatalf("backoff %s outside [9s, 11s]", d)
		}
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 250, 0)
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 250*time.Millisecond {
		t.Errorf("InitialBackoff = %s, want 250ms", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != DefaultRetryConfig().MaxBackoff {
		t.Errorf("MaxBackoff = %s, want default", cfg.MaxBackoff)
	}
}

func TestFromSourceLimits(t *testing.T) {
	lim := FromSourceLimits(1500, -1, 20, 0, 30)
	if lim.MinDelay != 1500*time.Millisecond || lim.Jitter != 0 {
		t.Errorf("unexpected delays: %+v", lim)
	}
	if lim.PerMinute != 20 || lim.MaxInFlight != 1 || lim.MaxWait != 30*time.Second {
		t.Errorf("unexpected limits: %+v", lim)
	}
}

func TestBackoffSchedule(t *testing.T) {
	if got := BackoffSchedule(nil); !equalDurations(got, DefaultBackoffSchedule()) {
		t.Errorf("empty schedule = %v, want default", got)
	}
	want := []time.Duration{time.Second, 5 * time.Second}
	if got := BackoffSchedule([]int{1, 0, 5}); !equalDurations(got, want) {
		t.Errorf("schedule = %v, want %v", got, want)
	}
}

func TestRetryLogger(t *testing.T) {
	fn := RetryLogger("trends", "fetch")
	fn(1, errors.New("rate limited"))
}
