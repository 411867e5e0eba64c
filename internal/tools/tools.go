// Package tools exposes the mirror to an external agent as MCP tools.
//
// Read tools run the opportunistic freshness check first and degrade to the
// existing snapshot when a sync can't run; write tools go through the sync
// engine's optimistic path. Depth and limit arguments are always clamped.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"wfmirror/internal/cache"
	"wfmirror/internal/engine"
)

// Deps is everything the tool handlers need.
type Deps struct {
	Engine *engine.Engine
	Store  *cache.DB

	// ExcludedNames hides nodes from subtree reads unless reached via a
	// bookmark.
	ExcludedNames []string

	Logger *log.Logger
}

var errEmptyQuery = errors.New("query is required")

// Register adds every wfmirror tool to the MCP server.
func Register(s *server.MCPServer, deps *Deps) {
	registerReadTools(s, deps)
	registerWriteTools(s, deps)
}

// resolveNodeID maps a bookmark name to its node id, passing through raw
// ids unchanged.
func resolveNodeID(ctx context.Context, store *cache.DB, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	id, err := store.ResolveBookmark(ctx, ref)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	return ref, nil
}

// needsSyncResult is the explicit signal for reads against an empty mirror,
// instead of a misleading empty success.
func needsSyncResult() (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"cache_status": engine.StatusEmpty,
		"message":      "the local mirror is empty and could not be synced; run force_sync and retry",
	})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(fmt.Errorf("failed to encode result: %w", err))
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}
