package infra

import (
	"time"
)

const (
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 60 * time.Second
)

// Backoff returns the exponential backoff duration for a retry attempt:
// base * 2^retry, capped at max. Negative retry counts get the base delay.
func Backoff(retry int, base, max time.Duration) time.Duration {
	if retry < 0 {
		return base
	}
	// 2^31 seconds is far past any sane cap; bail before the shift overflows.
	if retry > 30 {
		return max
	}
	d := base * time.Duration(1<<retry)
	if d > max {
		return max
	}
	return d
}

// ReconnectBackoff is Backoff with the standard transport defaults (1s..60s).
func ReconnectBackoff(retry int) time.Duration {
	return Backoff(retry, defaultBaseDelay, defaultMaxDelay)
}
