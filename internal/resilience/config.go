package resilience

import "time"

// Attempts is a tight policy for local contention such as profile
// version conflicts: maxAttempts tries a few milliseconds apart.
func Attempts(maxAttempts int, shouldRetry func(error) bool) RetryConfig {
	return RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     250 * time.Millisecond,
		Multiplier:     2,
		JitterFraction: 0.5,
		ShouldRetry:    shouldRetry,
	}.withDefaults()
}

// FromRetries builds the remote-call policy from a configured retry
// count, the number of tries after the first. Negative keeps the default.
func FromRetries(retries int) RetryConfig {
	cfg := DefaultRetryConfig()
	if retries >= 0 {
		cfg.MaxAttempts = retries + 1
	}
	return cfg
}
