// Package cache provides the persistent local mirror of the remote outline.
//
// The mirror is an embedded SQLite database holding a flat copy of every
// remote node plus sync bookkeeping and named bookmarks. It is the single
// source all reads (tree assembly, search) are served from, so that the
// remote API is only consulted by the sync engine.
//
// The database runs in WAL mode for concurrent reads during writes. A single
// long-lived process is the only supported writer.
//
// Layout:
//   - nodes:     one row per mirrored outline node
//   - sync_meta: key/value sync bookkeeping (last full sync, lease)
//   - bookmarks: named shortcuts into the outline
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection holding the mirror.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The database is opened in WAL mode. If it doesn't exist it is created;
// call InitSchema before using it. The caller MUST call Close when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// WAL keeps readers unblocked while sync transactions commit.
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint so changes land in the main database file.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		parent_id TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,

		-- Denormalized count of direct children. Best-effort: may lag
		-- reality between an optimistic write and its reconciling sync.
		children_count INTEGER NOT NULL DEFAULT 0,

		created_at TEXT,
		updated_at TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bookmarks (
		name TEXT PRIMARY KEY,
		node_id TEXT NOT NULL,
		context TEXT,
		created_at TEXT
	);

	-- Indexes for parent lookups, completion filtering, sibling ordering,
	-- and substring search on name/note.
	CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_completed ON nodes(completed);
	CREATE INDEX IF NOT EXISTS idx_nodes_parent_priority ON nodes(parent_id, priority);
	CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
	CREATE INDEX IF NOT EXISTS idx_nodes_note ON nodes(note);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db.migrateBookmarks(ctx)
}

// migrateBookmarks brings an older bookmarks table up to date.
// Early databases lack the context column.
func (db *DB) migrateBookmarks(ctx context.Context) error {
	rows, err := db.conn.QueryContext(ctx, "PRAGMA table_info(bookmarks)")
	if err != nil {
		return fmt.Errorf("failed to inspect bookmarks table: %w", err)
	}
	defer rows.Close()

	hasContext := false
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to scan table info: %w", err)
		}
		if name == "context" {
			hasContext = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating table info: %w", err)
	}

	if !hasContext {
		if _, err := db.conn.ExecContext(ctx, "ALTER TABLE bookmarks ADD COLUMN context TEXT"); err != nil {
			return fmt.Errorf("failed to add context column: %w", err)
		}
	}
	return nil
}
