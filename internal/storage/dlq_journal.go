package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"autotrader/internal/resiliency"

	_ "github.com/glebarez/go-sqlite"
)

// DLQJournal persists dead-letter entries to SQLite for operator review.
// It is write-only from the core's perspective: entries are never read
// back into the live queue or redelivered.
type DLQJournal struct {
	db *sql.DB
}

// NewDLQJournal opens (or creates) the journal database with WAL mode.
func NewDLQJournal(dbPath string) (*DLQJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS dead_letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			adapter TEXT NOT NULL,
			op TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			first_failure INTEGER NOT NULL,
			last_failure INTEGER NOT NULL,
			entry BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create dead_letters table: %w", err)
	}

	return &DLQJournal{db: db}, nil
}

// Append stores one dead-letter entry.
func (j *DLQJournal) Append(ctx context.Context, entry resiliency.DeadLetterEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		"INSERT INTO dead_letters (adapter, op, attempts, first_failure, last_failure, entry) VALUES (?, ?, ?, ?, ?, ?)",
		entry.Adapter, entry.Op, len(entry.Attempts),
		entry.FirstFailureUnixM, entry.LastFailureUnixM, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	return nil
}

// List returns up to limit entries, newest first. For operator tooling.
func (j *DLQJournal) List(ctx context.Context, limit int) ([]resiliency.DeadLetterEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT entry FROM dead_letters ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var entries []resiliency.DeadLetterEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}

		var entry resiliency.DeadLetterEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

// Count returns the total number of journaled entries.
func (j *DLQJournal) Count(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dead_letters").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (j *DLQJournal) Close() error {
	return j.db.Close()
}
