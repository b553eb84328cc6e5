package resiliency

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject requests
	StateHalfOpen              // Testing recovery with a single probe
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker isolates a consistently-failing venue. Failures are
// counted over a rolling window; crossing the threshold opens the circuit
// for the cooldown period, after which exactly one probe call is allowed
// through. Thread-safe for concurrent use.
type CircuitBreaker struct {
	name string
	mu   sync.Mutex

	state       State
	failures    []time.Time // rolling failure window
	lastFailure time.Time
	probing     bool // a half-open probe is in flight

	failureThreshold int
	failureWindow    time.Duration
	timeout          time.Duration
}

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	FailureWindow    time.Duration
	Timeout          time.Duration
}

// DefaultCircuitBreakerConfig returns the standard policy: 5 failures in
// 5 minutes opens the circuit for 60 seconds.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		FailureWindow:    5 * time.Minute,
		Timeout:          60 * time.Second,
	}
}

// NewCircuitBreaker creates a new circuit breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:             cfg.Name,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		failureWindow:    cfg.FailureWindow,
		timeout:          cfg.Timeout,
	}
}

// Allow checks if a request should be allowed. Returns true if the request
// can proceed. In the open state the first Allow after the cooldown
// transitions to half-open and admits that caller as the single probe;
// concurrent callers during the probe are rejected.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailure) > cb.timeout {
			cb.state = StateHalfOpen
			cb.probing = true
			slog.Info("Circuit breaker transitioning to HALF_OPEN",
				slog.String("name", cb.name))
			return true
		}
		return false

	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true

	default:
		return false
	}
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = cb.failures[:0]

	case StateHalfOpen:
		cb.state = StateClosed
		cb.failures = cb.failures[:0]
		cb.probing = false
		slog.Info("Circuit breaker CLOSED (probe succeeded)",
			slog.String("name", cb.name))
	}
}

// RecordFailure records a failed operation.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.lastFailure = now

	switch cb.state {
	case StateClosed:
		cb.failures = append(cb.failures, now)
		cb.pruneWindow(now)
		if len(cb.failures) >= cb.failureThreshold {
			cb.state = StateOpen
			slog.Warn("Circuit breaker OPEN (failures exceeded threshold)",
				slog.String("name", cb.name),
				slog.Int("failures", len(cb.failures)))
		}

	case StateHalfOpen:
		// The probe failed; back to open, cooldown restarts.
		cb.state = StateOpen
		cb.probing = false
		slog.Warn("Circuit breaker OPEN (half-open probe failed)",
			slog.String("name", cb.name))
	}
}

// pruneWindow drops failures older than the rolling window.
// Must be called with mutex held.
func (cb *CircuitBreaker) pruneWindow(now time.Time) {
	cutoff := now.Add(-cb.failureWindow)
	idx := 0
	for idx < len(cb.failures) && cb.failures[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		cb.failures = append(cb.failures[:0], cb.failures[idx:]...)
	}
}

// GetState returns the current state (for monitoring).
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns state plus window details for the status surface.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := CircuitSnapshot{
		Name:     cb.name,
		State:    cb.state.String(),
		Failures: len(cb.failures),
	}
	if !cb.lastFailure.IsZero() {
		snap.LastFailureUnixM = cb.lastFailure.UnixMicro()
	}
	return snap
}

// CircuitSnapshot is a read-only view of one breaker.
type CircuitSnapshot struct {
	Name             string `json:"name"`
	State            string `json:"state"`
	Failures         int    `json:"failures"`
	LastFailureUnixM int64  `json:"last_failure_unix"`
}

// Reset forces the circuit breaker to closed state (for testing/admin).
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = cb.failures[:0]
	cb.probing = false
	slog.Info("Circuit breaker RESET", slog.String("name", cb.name))
}
