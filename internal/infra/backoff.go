package infra

import "time"

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given attempt:
// 1s, 2s, 4s ... capped at 60s.
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 6 {
		return backoffMax
	}
	delay := backoffBase << uint(attempt)
	if delay > backoffMax {
		return backoffMax
	}
	return delay
}
