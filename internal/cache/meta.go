package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Keys in the sync_meta table. Mutated only by the sync engine.
const (
	MetaLastFullSync      = "last_full_sync"
	MetaLastSyncNodeCount = "last_sync_node_count"
	MetaSyncInProgress    = "sync_in_progress"
	MetaSyncStartedAt     = "sync_started_at"
)

// GetMeta returns the value for a sync_meta key, or "" if unset.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta writes one sync_meta key.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO sync_meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

// SetMetaBatch writes several sync_meta keys in one transaction.
func (db *DB) SetMetaBatch(ctx context.Context, kv map[string]string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range kv {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to set meta %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit meta batch: %w", err)
	}
	return nil
}
