package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Bookmark is a named shortcut into the outline.
//
// Bookmarks are the stable entry points an agent uses instead of raw node
// ids; the sync engine also uses them for targeted subtree refreshes.
type Bookmark struct {
	Name      string     `json:"name"`
	NodeID    string     `json:"node_id"`
	Context   string     `json:"context,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// PutBookmark inserts or updates a bookmark.
func (db *DB) PutBookmark(ctx context.Context, b *Bookmark) error {
	if b.Name == "" {
		return fmt.Errorf("bookmark name is required")
	}
	if b.NodeID == "" {
		return fmt.Errorf("bookmark node_id is required")
	}

	createdAt := b.CreatedAt
	if createdAt == nil {
		now := time.Now().UTC()
		createdAt = &now
	}

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO bookmarks (name, node_id, context, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		node_id = excluded.node_id,
		context = excluded.context
	`, b.Name, b.NodeID, nullIfEmpty(b.Context), timeToNullString(createdAt))
	if err != nil {
		return fmt.Errorf("failed to put bookmark %s: %w", b.Name, err)
	}
	return nil
}

// GetBookmark retrieves a bookmark by name.
// Returns sql.ErrNoRows if the bookmark doesn't exist.
func (db *DB) GetBookmark(ctx context.Context, name string) (*Bookmark, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT name, node_id, context, created_at FROM bookmarks WHERE name = ?`, name)
	return scanBookmark(row)
}

// ListBookmarks returns all bookmarks ordered by name.
func (db *DB) ListBookmarks(ctx context.Context) ([]*Bookmark, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, node_id, context, created_at FROM bookmarks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []*Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookmarks: %w", err)
	}
	return bookmarks, nil
}

// DeleteBookmark removes a bookmark by name.
// Returns nil if the bookmark doesn't exist (idempotent).
func (db *DB) DeleteBookmark(ctx context.Context, name string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete bookmark %s: %w", name, err)
	}
	return nil
}

// ResolveBookmark maps a bookmark name to its node id.
// Returns ("", nil) if no such bookmark exists.
func (db *DB) ResolveBookmark(ctx context.Context, name string) (string, error) {
	b, err := db.GetBookmark(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return b.NodeID, nil
}

func scanBookmark(row rowScanner) (*Bookmark, error) {
	var b Bookmark
	var bmContext sql.NullString
	var createdAt sql.NullString

	if err := row.Scan(&b.Name, &b.NodeID, &bmContext, &createdAt); err != nil {
		return nil, err
	}
	if bmContext.Valid {
		b.Context = bmContext.String
	}
	b.CreatedAt = nullStringToTime(createdAt)
	return &b, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
