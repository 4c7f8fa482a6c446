// Package index provides a SQLite-backed index of archive documents and the
// API change ledger, with optional FTS5 full-text search.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path            TEXT PRIMARY KEY,
	url             TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL DEFAULT '',
	language        TEXT NOT NULL DEFAULT '',
	current_version TEXT NOT NULL DEFAULT '',
	versions        TEXT NOT NULL DEFAULT '[]',
	abstract        TEXT NOT NULL DEFAULT '',
	checksum        TEXT NOT NULL DEFAULT '',
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_url ON documents(url);
CREATE INDEX IF NOT EXISTS idx_documents_language ON documents(language);

CREATE TABLE IF NOT EXISTS changes (
	language TEXT NOT NULL,
	url      TEXT NOT NULL,
	version  TEXT NOT NULL,
	kind     TEXT NOT NULL,
	UNIQUE(language, url, version)
);

CREATE INDEX IF NOT EXISTS idx_changes_version ON changes(version);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
