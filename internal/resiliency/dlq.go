package resiliency

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// AttemptOutcome records one failed attempt of a dead-lettered request.
type AttemptOutcome struct {
	Attempt int    `json:"attempt"`
	Error   string `json:"error"`
	AtUnixM int64  `json:"at_unix"`
}

// DeadLetterEntry is a request that exhausted all retries. Entries are
// consumed only by operator review; the core never auto-retries them.
type DeadLetterEntry struct {
	Adapter           string           `json:"adapter"`
	Op                string           `json:"op"`
	Payload           json.RawMessage  `json:"payload"`
	Attempts          []AttemptOutcome `json:"attempts"`
	FirstFailureUnixM int64            `json:"first_failure_unix"`
	LastFailureUnixM  int64            `json:"last_failure_unix"`
}

// Journal is an optional write-only sink for dead letters (sqlite-backed
// in production). Entries are never redelivered from the journal.
type Journal interface {
	Append(ctx context.Context, entry DeadLetterEntry) error
}

// DeadLetterQueue holds exhausted requests in memory.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	journal Journal
}

// NewDeadLetterQueue creates a DLQ. journal may be nil.
func NewDeadLetterQueue(journal Journal) *DeadLetterQueue {
	return &DeadLetterQueue{journal: journal}
}

// Add appends an entry and journals it if a journal is configured.
// A journal write failure is logged, never fatal: the in-memory queue is
// authoritative.
func (q *DeadLetterQueue) Add(ctx context.Context, entry DeadLetterEntry) {
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	size := len(q.entries)
	q.mu.Unlock()

	slog.Error("Request dead-lettered",
		slog.String("adapter", entry.Adapter),
		slog.String("op", entry.Op),
		slog.Int("attempts", len(entry.Attempts)),
		slog.Int("dlq_size", size))

	if q.journal != nil {
		if err := q.journal.Append(ctx, entry); err != nil {
			slog.Warn("DLQ journal write failed", slog.Any("error", err))
		}
	}
}

// Entries returns a copy of all dead letters, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the number of dead letters.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
