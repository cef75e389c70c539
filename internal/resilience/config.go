package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, cooldownSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}

// FromSourceLimits converts config values to SourceLimits.
func FromSourceLimits(minDelayMs, jitterMs, perMinute, maxInFlight, maxWaitSecs int) SourceLimits {
	return SourceLimits{
		MinDelay:    time.Duration(max(minDelayMs, 0)) * time.Millisecond,
		Jitter:      time.Duration(max(jitterMs, 0)) * time.Millisecond,
		PerMinute:   max(perMinute, 0),
		MaxInFlight: max(maxInFlight, 1),
		MaxWait:     time.Duration(max(maxWaitSecs, 0)) * time.Second,
	}
}

// BackoffSchedule converts a list of seconds into a backoff schedule,
// falling back to DefaultBackoffSchedule when empty.
func BackoffSchedule(secs []int) []time.Duration {
	var out []time.Duration
	for _, s := range secs {
		if s > 0 {
			out = append(out, time.Duration(s)*time.Second)
		}
	}
	if len(out) == 0 {
		return DefaultBackoffSchedule()
	}
	return out
}
