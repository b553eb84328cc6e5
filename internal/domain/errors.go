package domain

import "errors"

// Error taxonomy for the execution core. Adapters and the resiliency layer
// wrap these sentinels with %w so callers branch with errors.Is.
var (
	// ErrVenueRejected: order malformed per venue rules. Not retryable.
	ErrVenueRejected = errors.New("venue rejected request")

	// ErrVenueUnavailable: transient network/timeout failure. Retryable.
	ErrVenueUnavailable = errors.New("venue unavailable")

	// ErrCircuitOpen: adapter traffic suspended by the circuit breaker.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrRetriesExhausted: all retries spent; request landed in the DLQ.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrUnknownOrder: fill references an order the OMS does not track.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrOverFill: cumulative fill quantity would exceed the order quantity.
	ErrOverFill = errors.New("fill exceeds order quantity")

	// ErrOrderNotFound: venue no longer knows the order (already terminal).
	// Cancel treats this as a no-op success.
	ErrOrderNotFound = errors.New("order not found at venue")

	// ErrNotConnected: adapter call before Connect.
	ErrNotConnected = errors.New("adapter not connected")
)
