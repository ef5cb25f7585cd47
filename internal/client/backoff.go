package client

import "time"

const (
	// DefaultMaxAttempts is the reconnect budget before the session fails.
	DefaultMaxAttempts = 5

	baseDelay = time.Second
	maxDelay  = 30 * time.Second
)

// Backoff returns the delay before reconnect attempt number attempt+1:
// min(1s * 2^attempt, 30s).
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxDelay
	}
	return min(baseDelay<<attempt, maxDelay)
}
