// Package store provides the SQLite-backed audio record store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/state"
)

// SchemaVersion is stored in PRAGMA user_version. Any other value on open
// means an incompatible layout: the table is dropped and recreated.
const SchemaVersion = 1

const recordsSchemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	title     TEXT    NOT NULL,
	file_path TEXT    NOT NULL,
	timestamp INTEGER NOT NULL,
	duration  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_records_file_path ON records(file_path);
`

// DB wraps a sql.DB with record-specific operations and a live feed.
type DB struct {
	conn *sql.DB

	// writeMu orders writes and the feed refresh that follows each one.
	writeMu sync.Mutex
	feed    *state.Cell[[]models.AudioRecord]
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	// A single connection avoids "database is locked" between writers.
	conn.SetMaxOpenConns(1)

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, feed: state.NewCell[[]models.AudioRecord](nil)}
	if err := db.refresh(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// migrate applies the schema. Migration is destructive: a version mismatch
// drops existing data.
func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if version != SchemaVersion {
		if _, err := conn.Exec(`DROP TABLE IF EXISTS records`); err != nil {
			return fmt.Errorf("store: drop outdated schema: %w", err)
		}
	}
	if _, err := conn.Exec(recordsSchemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
		return fmt.Errorf("store: write schema version: %w", err)
	}
	return nil
}

// Close stops the live feed and closes the database connection.
func (db *DB) Close() error {
	db.feed.Close()
	return db.conn.Close()
}
