package resilience

import "time"

// BatchPolicy is the retry policy for change-list batch writes: any error is
// retried, the delay doubles from initialBackoff and there is no jitter.
// Non-positive arguments keep the DefaultRetryConfig values.
func BatchPolicy(maxAttempts int, initialBackoff time.Duration, onRetry func(int, error)) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoff > 0 {
		cfg.InitialBackoff = initialBackoff
	}
	cfg.OnRetry = onRetry
	return cfg
}
