package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LogEntry is one journal row recording a mutating operation.
type LogEntry struct {
	Seq       int64
	Op        string
	Detail    string
	CreatedAt time.Time
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// appendLog records op in the journal. Mutations call it inside their own
// transaction so the journal and the rows it describes commit together.
func appendLog(ctx context.Context, ex execer, op, detail string) error {
	if _, err := ex.ExecContext(ctx,
		`INSERT INTO store_log(op, detail) VALUES(?, ?)`, op, detail); err != nil {
		return fmt.Errorf("store: journal %s: %w", op, err)
	}
	return nil
}

// LogOperation records an operation performed by a collaborating component,
// such as an analytic cache persisting its results.
func (s *Store) LogOperation(ctx context.Context, op, detail string) error {
	return appendLog(ctx, s.db, op, detail)
}

// Log returns journal entries, newest first. limit <= 0 returns all.
func (s *Store) Log(ctx context.Context, limit int) ([]LogEntry, error) {
	q := `SELECT seq, op, detail, created_at FROM store_log ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: read journal: %w", err)
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var created string
		if err := rows.Scan(&e.Seq, &e.Op, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("store: read journal: %w", err)
		}
		e.CreatedAt = parseTimestamp(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read journal: %w", err)
	}
	return out, nil
}

// lastSeq returns the newest journal sequence number, 0 for an empty journal.
// ContentHash uses it as a cheap change token.
func (s *Store) lastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM store_log`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("store: read journal: %w", err)
	}
	return seq.Int64, nil
}

// parseTimestamp reads the formats SQLite produces for CURRENT_TIMESTAMP.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
