// Package fetchlog persists the outcome of every layered fetch to SQLite:
// which strategy won, how long it took, and a sanitized markdown snapshot
// of successful pages. The log is append-only diagnostics; the pipeline
// never reads it on the hot path.
package fetchlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/rivale/dbopen"
	"github.com/hazyhaar/rivale/fetch"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetch_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	target      TEXT NOT NULL,
	strategy    TEXT NOT NULL DEFAULT '',
	succeeded   INTEGER NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	tries       INTEGER NOT NULL DEFAULT 0,
	text_len    INTEGER NOT NULL DEFAULT 0,
	markdown    TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	fetched_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_target ON fetch_log(target, fetched_at);
`

// Entry is one logged fetch outcome.
type Entry struct {
	ID        int64
	Target    string
	Strategy  string
	Succeeded bool
	Reason    string
	Tries     int
	TextLen   int
	Markdown  string
	Duration  time.Duration
	FetchedAt time.Time
}

// Store writes and reads the fetch log.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the fetch log database at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("fetchlog: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle, applying the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("fetchlog: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert records one fetch outcome. Retries transparently on SQLITE_BUSY.
func (s *Store) Insert(ctx context.Context, res fetch.Result, duration time.Duration) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO fetch_log
			(target, strategy, succeeded, reason, tries, text_len, markdown, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.Target,
		string(res.StrategyUsed),
		boolInt(res.Succeeded),
		string(res.FailureReason),
		res.StrategiesTried,
		len(res.Text),
		res.Markdown,
		duration.Milliseconds(),
		res.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("fetchlog: insert %s: %w", res.Target, err)
	}
	return nil
}

// History returns the most recent entries for a target, newest first.
func (s *Store) History(ctx context.Context, target string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target, strategy, succeeded, reason, tries, text_len, markdown, duration_ms, fetched_at
		FROM fetch_log
		WHERE target = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT ?`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("fetchlog: history %s: %w", target, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			succeeded  int
			durationMS int64
			fetchedAt  string
		)
		if err := rows.Scan(&e.ID, &e.Target, &e.Strategy, &succeeded, &e.Reason,
			&e.Tries, &e.TextLen, &e.Markdown, &durationMS, &fetchedAt); err != nil {
			return nil, fmt.Errorf("fetchlog: scan: %w", err)
		}
		e.Succeeded = succeeded != 0
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, fetchedAt); err == nil {
			e.FetchedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
