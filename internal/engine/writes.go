package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wfmirror/internal/workflowy"
)

// The write path is optimistic: after the remote accepts a mutation the
// equivalent change is applied to the mirror immediately, so the very next
// read reflects it without waiting on any sync. A fire-and-forget partial
// resync of the affected parent(s) then corrects any divergence (server-side
// normalization, concurrent edits from elsewhere). Reconciliation failures
// are logged and swallowed; the optimistic value stands until the next
// successful sync.

const backgroundTimeout = 2 * time.Minute

// CreateNode creates a node remotely, mirrors it locally, and schedules a
// reconcile of the parent. Returns the created node's id.
func (e *Engine) CreateNode(ctx context.Context, parentID, name, note string) (string, error) {
	created, err := e.remote.Create(ctx, workflowy.CreateRequest{
		ParentID: parentID,
		Name:     name,
		Note:     note,
	})
	if err != nil {
		return "", fmt.Errorf("create failed: %w", err)
	}

	node := remoteToCache(*created, 0)
	if node.ParentID == nil && parentID != "" {
		node.ParentID = &parentID
	}
	if err := e.store.UpsertNodeContext(ctx, node); err != nil {
		return created.ID, fmt.Errorf("create: cache update failed: %w", err)
	}
	if parentID != "" {
		if err := e.store.BumpChildrenCount(ctx, parentID, 1); err != nil {
			e.logger.Printf("Warning: %v", err)
		}
	}

	e.reconcileLater("create", parentID)
	return created.ID, nil
}

// UpdateNode updates a node's name and/or note remotely, patches the cached
// row, and schedules a single-node reconcile.
func (e *Engine) UpdateNode(ctx context.Context, id string, name, note *string) error {
	if name == nil && note == nil {
		return fmt.Errorf("update: nothing to change")
	}
	if err := e.remote.Update(ctx, id, workflowy.UpdateRequest{Name: name, Note: note}); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	existing, err := e.store.GetNodeContext(ctx, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update: cache read failed: %w", err)
	}
	if existing != nil {
		if name != nil {
			existing.Name = *name
		}
		if note != nil {
			existing.Note = *note
		}
		now := e.now().UTC()
		existing.UpdatedAt = &now
		if err := e.store.UpsertNodeContext(ctx, existing); err != nil {
			return fmt.Errorf("update: cache update failed: %w", err)
		}
	}

	e.background("update reconcile", func(ctx context.Context) error {
		return e.SyncNode(ctx, id)
	})
	return nil
}

// MoveNode reparents a node remotely, mirrors the move locally (adjusting
// both parents' child counts), and schedules reconciles of old and new
// parents.
func (e *Engine) MoveNode(ctx context.Context, id, newParentID string, priority int) error {
	if err := e.remote.Move(ctx, id, workflowy.MoveRequest{ParentID: newParentID, Priority: priority}); err != nil {
		return fmt.Errorf("move failed: %w", err)
	}

	existing, err := e.store.GetNodeContext(ctx, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("move: cache read failed: %w", err)
	}

	oldParent := ""
	if existing != nil {
		if existing.ParentID != nil {
			oldParent = *existing.ParentID
		}
		if newParentID == "" {
			existing.ParentID = nil
		} else {
			existing.ParentID = &newParentID
		}
		existing.Priority = priority
		if err := e.store.UpsertNodeContext(ctx, existing); err != nil {
			return fmt.Errorf("move: cache update failed: %w", err)
		}
		if oldParent != "" && oldParent != newParentID {
			if err := e.store.BumpChildrenCount(ctx, oldParent, -1); err != nil {
				e.logger.Printf("Warning: %v", err)
			}
		}
		if newParentID != "" && oldParent != newParentID {
			if err := e.store.BumpChildrenCount(ctx, newParentID, 1); err != nil {
				e.logger.Printf("Warning: %v", err)
			}
		}
	}

	e.reconcileLater("move", oldParent, newParentID)
	return nil
}

// DeleteNode deletes a node remotely, cascade-deletes the local subtree,
// and schedules a reconcile of the parent.
func (e *Engine) DeleteNode(ctx context.Context, id string) error {
	existing, err := e.store.GetNodeContext(ctx, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete: cache read failed: %w", err)
	}

	if err := e.remote.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	if err := e.store.DeleteNodeCascadeContext(ctx, id); err != nil {
		return fmt.Errorf("delete: cache update failed: %w", err)
	}

	parent := ""
	if existing != nil && existing.ParentID != nil {
		parent = *existing.ParentID
		if err := e.store.BumpChildrenCount(ctx, parent, -1); err != nil {
			e.logger.Printf("Warning: %v", err)
		}
	}

	e.reconcileLater("delete", parent)
	return nil
}

// SetCompleted flips a node's completion flag remotely and locally, then
// schedules a single-node reconcile.
func (e *Engine) SetCompleted(ctx context.Context, id string, completed bool) error {
	if err := e.remote.SetCompleted(ctx, id, completed); err != nil {
		return fmt.Errorf("complete failed: %w", err)
	}

	existing, err := e.store.GetNodeContext(ctx, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("complete: cache read failed: %w", err)
	}
	if existing != nil {
		existing.Completed = completed
		now := e.now().UTC()
		existing.UpdatedAt = &now
		if err := e.store.UpsertNodeContext(ctx, existing); err != nil {
			return fmt.Errorf("complete: cache update failed: %w", err)
		}
	}

	e.background("complete reconcile", func(ctx context.Context) error {
		return e.SyncNode(ctx, id)
	})
	return nil
}

// reconcileLater schedules a background children sync for each distinct
// non-duplicate parent. The empty string reconciles the top level.
func (e *Engine) reconcileLater(op string, parents ...string) {
	seen := make(map[string]bool, len(parents))
	for _, p := range parents {
		if seen[p] {
			continue
		}
		seen[p] = true
		parent := p
		e.background(op+" reconcile", func(ctx context.Context) error {
			return e.SyncChildren(ctx, parent)
		})
	}
}

// background runs fn as a fire-and-forget task. It must never block the
// caller and never surface a failure to it; errors are drained to the log.
func (e *Engine) background(name string, fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Printf("Panic in background %s: %v", name, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			e.logger.Printf("Background %s failed: %v", name, err)
		}
	}()
}
