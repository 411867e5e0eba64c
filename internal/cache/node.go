package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Node is one mirrored outline node.
//
// ParentID is nil for top-level nodes. ChildrenCount is a cached count of
// direct children; it may transiently lag reality between an optimistic
// mutation and its reconciling sync, so consumers must tolerate staleness
// of this one field.
type Node struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Note          string     `json:"note,omitempty"`
	ParentID      *string    `json:"parent_id,omitempty"`
	Completed     bool       `json:"completed"`
	Priority      int        `json:"priority"`
	ChildrenCount int        `json:"children_count"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Validate checks that the node can be stored.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("id is required")
	}
	if n.ParentID != nil && *n.ParentID == n.ID {
		return fmt.Errorf("node %s cannot be its own parent", n.ID)
	}
	return nil
}

const nodeColumns = `id, name, note, parent_id, completed, priority, children_count, created_at, updated_at`

// UpsertNode inserts or updates a node in the mirror.
func (db *DB) UpsertNode(node *Node) error {
	return db.UpsertNodeContext(context.Background(), node)
}

// UpsertNodeContext inserts or updates a node with context support.
func (db *DB) UpsertNodeContext(ctx context.Context, node *Node) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("invalid node: %w", err)
	}

	query := `
	INSERT INTO nodes (` + nodeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		note = excluded.note,
		parent_id = excluded.parent_id,
		completed = excluded.completed,
		priority = excluded.priority,
		children_count = excluded.children_count,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		node.ID,
		node.Name,
		node.Note,
		nullableString(node.ParentID),
		boolToInt(node.Completed),
		node.Priority,
		node.ChildrenCount,
		timeToNullString(node.CreatedAt),
		timeToNullString(node.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", node.ID, err)
	}
	return nil
}

// GetNode retrieves a single node by ID.
// Returns sql.ErrNoRows if the node is not cached.
func (db *DB) GetNode(id string) (*Node, error) {
	return db.GetNodeContext(context.Background(), id)
}

// GetNodeContext retrieves a single node by ID with context support.
func (db *DB) GetNodeContext(ctx context.Context, id string) (*Node, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	return scanNode(row)
}

// Children returns the direct children of a parent, ordered by priority
// then name. A nil parentID returns the top-level nodes.
func (db *DB) Children(parentID *string) ([]*Node, error) {
	return db.ChildrenContext(context.Background(), parentID)
}

// ChildrenContext returns direct children with context support.
func (db *DB) ChildrenContext(ctx context.Context, parentID *string) ([]*Node, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == nil {
		rows, err = db.conn.QueryContext(ctx,
			`SELECT `+nodeColumns+` FROM nodes WHERE parent_id IS NULL ORDER BY priority, name`)
	} else {
		rows, err = db.conn.QueryContext(ctx,
			`SELECT `+nodeColumns+` FROM nodes WHERE parent_id = ? ORDER BY priority, name`, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// CountNodes returns the total number of mirrored nodes.
func (db *DB) CountNodes() (int, error) {
	return db.CountNodesContext(context.Background())
}

// CountNodesContext returns the node count with context support.
func (db *DB) CountNodesContext(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

// DeleteNodeCascade removes a node and every descendant reachable through
// parent_id, so a deleted subtree leaves no orphans behind.
// Returns nil if the node doesn't exist (idempotent).
func (db *DB) DeleteNodeCascade(id string) error {
	return db.DeleteNodeCascadeContext(context.Background(), id)
}

// DeleteNodeCascadeContext removes a subtree with context support.
func (db *DB) DeleteNodeCascadeContext(ctx context.Context, id string) error {
	query := `
	WITH RECURSIVE doomed AS (
		SELECT id FROM nodes WHERE id = ?

		UNION

		SELECT n.id
		FROM nodes n
		JOIN doomed d ON n.parent_id = d.id
	)
	DELETE FROM nodes WHERE id IN (SELECT id FROM doomed)
	`
	if _, err := db.conn.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete node %s: %w", id, err)
	}
	return nil
}

// SetChildrenCount overwrites the cached child count of one node.
func (db *DB) SetChildrenCount(ctx context.Context, id string, count int) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE nodes SET children_count = ? WHERE id = ?`, count, id); err != nil {
		return fmt.Errorf("failed to set children_count for %s: %w", id, err)
	}
	return nil
}

// BumpChildrenCount adjusts the cached child count of one node by delta,
// clamped at zero. Used by the optimistic write path; the next reconciling
// sync replaces the estimate with the real count.
func (db *DB) BumpChildrenCount(ctx context.Context, id string, delta int) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE nodes SET children_count = MAX(0, children_count + ?) WHERE id = ?`, delta, id); err != nil {
		return fmt.Errorf("failed to bump children_count for %s: %w", id, err)
	}
	return nil
}

// ReplaceAll atomically replaces the entire node table with a fresh snapshot.
//
// The delete and every insert run in one transaction: if anything fails the
// transaction rolls back and the previous snapshot is preserved untouched.
func (db *DB) ReplaceAll(ctx context.Context, nodes []*Node) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
		return fmt.Errorf("failed to clear nodes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO nodes (`+nodeColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, node := range nodes {
		if err := node.Validate(); err != nil {
			return fmt.Errorf("invalid node in snapshot: %w", err)
		}
		_, err := stmt.ExecContext(ctx,
			node.ID,
			node.Name,
			node.Note,
			nullableString(node.ParentID),
			boolToInt(node.Completed),
			node.Priority,
			node.ChildrenCount,
			timeToNullString(node.CreatedAt),
			timeToNullString(node.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// ===================
// Candidate pre-filter queries
// ===================

// SearchPhrase returns nodes whose name or note contains the query as an
// exact substring (case-insensitive). Unbounded: exact-phrase matches are
// always relevant.
func (db *DB) SearchPhrase(ctx context.Context, phrase string) ([]*Node, error) {
	pattern := "%" + escapeLike(phrase) + "%"
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes
		 WHERE name LIKE ? ESCAPE '\' OR note LIKE ? ESCAPE '\'`,
		pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed phrase search: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// SearchAllWords returns nodes where every word appears as a substring of
// name or note, in any order. Bounded; recovers reordered multi-word matches.
func (db *DB) SearchAllWords(ctx context.Context, words []string, limit int) ([]*Node, error) {
	if len(words) == 0 {
		return nil, nil
	}
	var conditions []string
	var args []interface{}
	for _, w := range words {
		pattern := "%" + escapeLike(w) + "%"
		conditions = append(conditions, `(name LIKE ? ESCAPE '\' OR note LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes
		 WHERE `+strings.Join(conditions, " AND ")+` LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed all-words search: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// SearchAnyWord returns nodes where at least one word appears as a substring
// of name or note. Bounded; the widest net, for partial and typo matches.
func (db *DB) SearchAnyWord(ctx context.Context, words []string, limit int) ([]*Node, error) {
	if len(words) == 0 {
		return nil, nil
	}
	var conditions []string
	var args []interface{}
	for _, w := range words {
		pattern := "%" + escapeLike(w) + "%"
		conditions = append(conditions, `name LIKE ? ESCAPE '\' OR note LIKE ? ESCAPE '\'`)
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes
		 WHERE `+strings.Join(conditions, " OR ")+` LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed any-word search: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// ===================
// Scan helpers
// ===================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*Node, error) {
	var node Node
	var parentID sql.NullString
	var completed int
	var createdAt, updatedAt sql.NullString

	err := row.Scan(
		&node.ID,
		&node.Name,
		&node.Note,
		&parentID,
		&completed,
		&node.Priority,
		&node.ChildrenCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		node.ParentID = &parentID.String
	}
	node.Completed = completed != 0
	node.CreatedAt = nullStringToTime(createdAt)
	node.UpdatedAt = nullStringToTime(updatedAt)
	return &node, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
