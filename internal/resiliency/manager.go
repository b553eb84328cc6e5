// Package resiliency wraps adapter calls with retry, exponential backoff,
// a per-adapter circuit breaker and a dead-letter queue. Transient venue
// errors are absorbed here; callers only ever see ErrVenueRejected,
// ErrCircuitOpen or ErrRetriesExhausted.
package resiliency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autotrader/internal/domain"
	"autotrader/internal/infra"
)

// ManagerConfig holds the retry and breaker policy.
type ManagerConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	FailureThreshold int
	FailureWindow    time.Duration
	CircuitTimeout   time.Duration
}

// DefaultManagerConfig returns the standard policy: 3 retries starting at
// 500ms, breaker at 5 failures in 5 minutes with a 60s cooldown.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxRetries:       3,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
		FailureThreshold: 5,
		FailureWindow:    5 * time.Minute,
		CircuitTimeout:   60 * time.Second,
	}
}

// Manager owns one circuit breaker per adapter and the DLQ.
type Manager struct {
	cfg ManagerConfig
	dlq *DeadLetterQueue

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewManager creates a resiliency manager. journal may be nil.
func NewManager(cfg ManagerConfig, journal Journal) *Manager {
	return &Manager{
		cfg:      cfg,
		dlq:      NewDeadLetterQueue(journal),
		breakers: make(map[string]*CircuitBreaker),
	}
}

// DLQ exposes the dead-letter queue for the status surface and operators.
func (m *Manager) DLQ() *DeadLetterQueue {
	return m.dlq
}

func (m *Manager) breaker(adapter string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	cb, ok := m.breakers[adapter]
	if !ok {
		cb = NewCircuitBreaker(CircuitBreakerConfig{
			Name:             adapter,
			FailureThreshold: m.cfg.FailureThreshold,
			FailureWindow:    m.cfg.FailureWindow,
			Timeout:          m.cfg.CircuitTimeout,
		})
		m.breakers[adapter] = cb
	}
	return cb
}

// CircuitStates returns a snapshot of every known breaker.
func (m *Manager) CircuitStates() []CircuitSnapshot {
	m.mu.Lock()
	names := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		names = append(names, cb)
	}
	m.mu.Unlock()

	out := make([]CircuitSnapshot, 0, len(names))
	for _, cb := range names {
		out = append(out, cb.Snapshot())
	}
	return out
}

// Execute runs fn under the retry/breaker policy for the named adapter.
//
//   - ErrVenueRejected is surfaced immediately; the venue answered, so the
//     attempt counts as breaker success.
//   - ErrVenueUnavailable (and any unclassified error) is retried up to
//     MaxRetries with exponential backoff; every failed attempt feeds the
//     breaker.
//   - When the breaker rejects a call, ErrCircuitOpen is returned without
//     touching the network and nothing is dead-lettered.
//   - Exhausting all retries writes the payload and full attempt history
//     to the DLQ and returns ErrRetriesExhausted.
func (m *Manager) Execute(ctx context.Context, adapter, op string, payload any, fn func(context.Context) error) error {
	cb := m.breaker(adapter)

	var attempts []AttemptOutcome
	var lastErr error

	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if !cb.Allow() {
			return fmt.Errorf("%s %s: %w", adapter, op, domain.ErrCircuitOpen)
		}

		if attempt > 0 {
			delay := infra.Backoff(attempt-1, m.cfg.InitialBackoff, m.cfg.MaxBackoff)
			slog.Debug("Retrying venue call",
				slog.String("adapter", adapter),
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			cb.RecordSuccess()
			return nil
		}

		if errors.Is(err, domain.ErrVenueRejected) {
			// The venue is reachable and answered; don't trip the breaker.
			cb.RecordSuccess()
			return err
		}

		cb.RecordFailure()
		lastErr = err
		attempts = append(attempts, AttemptOutcome{
			Attempt: attempt + 1,
			Error:   err.Error(),
			AtUnixM: time.Now().UnixMicro(),
		})
	}

	m.dlq.Add(ctx, m.buildEntry(adapter, op, payload, attempts))

	return fmt.Errorf("%s %s after %d attempts (%v): %w",
		adapter, op, len(attempts), lastErr, domain.ErrRetriesExhausted)
}

func (m *Manager) buildEntry(adapter, op string, payload any, attempts []AttemptOutcome) DeadLetterEntry {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage(fmt.Sprintf("%q", fmt.Sprintf("%+v", payload)))
	}

	entry := DeadLetterEntry{
		Adapter:  adapter,
		Op:       op,
		Payload:  raw,
		Attempts: attempts,
	}
	if len(attempts) > 0 {
		entry.FirstFailureUnixM = attempts[0].AtUnixM
		entry.LastFailureUnixM = attempts[len(attempts)-1].AtUnixM
	}
	return entry
}
