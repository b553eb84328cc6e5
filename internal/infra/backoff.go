package infra

import (
	"time"
)

const (
	// Defaults for connection-level retry loops (WS reconnect).
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// CalculateBackoff returns the exponential backoff duration for a given
// retry count using the package defaults. Logic: baseDelay * 2^retryCount,
// capped at maxDelay. If retryCount is negative, it returns baseDelay.
func CalculateBackoff(retryCount int) time.Duration {
	return Backoff(retryCount, baseDelay, maxDelay)
}

// Backoff returns base * 2^retryCount capped at max. Used by the resiliency
// layer with its own configured base/cap.
func Backoff(retryCount int, base, max time.Duration) time.Duration {
	if retryCount < 0 {
		return base
	}

	// 2^30s is already far beyond any sensible cap; avoid shift overflow.
	if retryCount > 30 {
		return max
	}

	backoff := base * time.Duration(1<<retryCount)
	if backoff > max || backoff < 0 {
		return max
	}

	return backoff
}
