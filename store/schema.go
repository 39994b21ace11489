package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements creates the tables a store file is made of:
//
//	items        one row per dataset item (identity, metadata, embedding)
//	store_info   key/value pairs describing the store (dataset, model, dim)
//	store_log    journal of mutating operations, newest seq doubles as the
//	             content-hash cache token
//	vector_index persisted ANN index blobs, one per distance metric
//	sim_index    persisted similarity-index payloads per cache key
//	store_locks  cross-process named locks
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS items (
    idx        INTEGER PRIMARY KEY,
    file_path  TEXT NOT NULL,
    labels     TEXT NOT NULL DEFAULT '[]',
    split      TEXT NOT NULL DEFAULT '',
    meta       TEXT NOT NULL DEFAULT '{}',
    embedding  BLOB NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS items_file_path ON items(file_path)`,
	`CREATE TABLE IF NOT EXISTS store_info (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS store_log (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    op         TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS vector_index (
    name         TEXT PRIMARY KEY,
    kind         TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    "index"      BLOB NOT NULL,
    updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS sim_index (
    key          TEXT PRIMARY KEY,
    content_hash TEXT NOT NULL,
    payload      BLOB NOT NULL,
    computed_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS store_locks (
    name      TEXT PRIMARY KEY,
    owner     TEXT NOT NULL,
    locked_at INTEGER NOT NULL
)`,
}

// triggerStatements install row-change triggers on items that drop persisted
// ANN indexes and similarity-index payloads whenever the row set changes, so
// stale blobs never outlive the content they were computed from. Staleness is
// additionally detected by content-hash comparison; the triggers only make
// the cleanup eager, including for rows written by external SQL tooling.
var triggerStatements = []string{
	`CREATE TRIGGER IF NOT EXISTS items_ai AFTER INSERT ON items BEGIN
    DELETE FROM vector_index;
    DELETE FROM sim_index;
END`,
	`CREATE TRIGGER IF NOT EXISTS items_au AFTER UPDATE ON items BEGIN
    DELETE FROM vector_index;
    DELETE FROM sim_index;
END`,
	`CREATE TRIGGER IF NOT EXISTS items_ad AFTER DELETE ON items BEGIN
    DELETE FROM vector_index;
    DELETE FROM sim_index;
END`,
}

// EnsureSchema creates the store tables and triggers in the provided
// database if they do not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("store: db is nil")
	}
	for _, stmt := range append(append([]string{}, schemaStatements...), triggerStatements...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}
