// Package tree reconstructs nested subtrees from the flat mirror.
//
// The builder is a pure reader of the cache store: it never mutates
// anything and never talks to the remote API.
package tree

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wfmirror/internal/cache"
)

// MaxDepth bounds recursion and call volume for subtree reads.
const MaxDepth = 10

// Node is one level of an assembled subtree.
//
// ChildrenCount is carried even when Children is not expanded, so a
// depth-limited boundary is visibly distinguishable from a true leaf.
type Node struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Note          string  `json:"note,omitempty"`
	Completed     bool    `json:"completed"`
	Priority      int     `json:"priority"`
	ChildrenCount int     `json:"children_count"`
	Children      []*Node `json:"children,omitempty"`
}

// ClampDepth bounds a requested depth to [1, MaxDepth].
func ClampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}

// Build assembles the subtree rooted at rootID, expanding depth levels of
// children below the root. Siblings are ordered by priority then name.
// Nodes whose name matches the exclusion list (case-insensitive) are pruned
// together with their whole subtree.
func Build(ctx context.Context, store *cache.DB, rootID string, depth int, exclude []string) (*Node, error) {
	depth = ClampDepth(depth)

	root, err := store.GetNodeContext(ctx, rootID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s not found in cache", rootID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read node %s: %w", rootID, err)
	}

	node := fromCache(root)
	if err := expand(ctx, store, node, depth, excludeSet(exclude)); err != nil {
		return nil, err
	}
	return node, nil
}

// BuildRoots assembles the forest of top-level nodes.
func BuildRoots(ctx context.Context, store *cache.DB, depth int, exclude []string) ([]*Node, error) {
	depth = ClampDepth(depth)
	excluded := excludeSet(exclude)

	roots, err := store.ChildrenContext(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read top-level nodes: %w", err)
	}

	var forest []*Node
	for _, r := range roots {
		if excluded[strings.ToLower(r.Name)] {
			continue
		}
		node := fromCache(r)
		if err := expand(ctx, store, node, depth-1, excluded); err != nil {
			return nil, err
		}
		forest = append(forest, node)
	}
	return forest, nil
}

// expand attaches up to depth levels of children below node.
func expand(ctx context.Context, store *cache.DB, node *Node, depth int, excluded map[string]bool) error {
	if depth <= 0 {
		return nil
	}

	children, err := store.ChildrenContext(ctx, &node.ID)
	if err != nil {
		return fmt.Errorf("failed to read children of %s: %w", node.ID, err)
	}

	for _, c := range children {
		if excluded[strings.ToLower(c.Name)] {
			continue
		}
		child := fromCache(c)
		if err := expand(ctx, store, child, depth-1, excluded); err != nil {
			return err
		}
		node.Children = append(node.Children, child)
	}
	return nil
}

func excludeSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

func fromCache(n *cache.Node) *Node {
	return &Node{
		ID:            n.ID,
		Name:          n.Name,
		Note:          n.Note,
		Completed:     n.Completed,
		Priority:      n.Priority,
		ChildrenCount: n.ChildrenCount,
	}
}
