package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

var registerOnce sync.Once

// Open opens a SQLite database using the modernc.org/sqlite driver. The
// vec_* scalar functions are registered before the first connection so every
// database opened through here can use them.
//
// For file-based databases, pass a path like "./db.sqlite". For in-memory
// databases, pass ":memory:".
func Open(dsn string) (*sql.DB, error) {
	registerOnce.Do(func() { _ = RegisterVectorFunctions() })
	return sql.Open("sqlite", dsn)
}

// Configure applies the connection pragmas stores rely on: WAL journaling so
// readers never block the single writer, and a busy timeout so competing
// writers queue instead of failing immediately.
func Configure(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("engine: %s: %w", pragma, err)
		}
	}
	return nil
}
