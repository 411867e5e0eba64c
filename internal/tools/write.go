package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"wfmirror/internal/cache"
	"wfmirror/internal/engine"
	"wfmirror/internal/workflowy"
)

func registerWriteTools(s *server.MCPServer, deps *Deps) {
	s.AddTool(createNodeTool(), createNodeHandler(deps))
	s.AddTool(updateNodeTool(), updateNodeHandler(deps))
	s.AddTool(moveNodeTool(), moveNodeHandler(deps))
	s.AddTool(deleteNodeTool(), deleteNodeHandler(deps))
	s.AddTool(completeNodeTool(), completeNodeHandler(deps))
	s.AddTool(forceSyncTool(), forceSyncHandler(deps))
	s.AddTool(saveBookmarkTool(), saveBookmarkHandler(deps))
	s.AddTool(deleteBookmarkTool(), deleteBookmarkHandler(deps))
}

// writeError turns engine failures into agent-readable tool results. An
// authentication failure is surfaced as such, never as a sync failure.
func writeError(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, workflowy.ErrUnauthorized) {
		return toolError(fmt.Errorf("authentication failed: %w", err))
	}
	return toolError(err)
}

// --- create_node ---

func createNodeTool() mcp.Tool {
	return mcp.NewTool("create_node",
		mcp.WithDescription("Create a new outline node under a parent. The parent may be a node id or a bookmark name; omit for top level."),
		mcp.WithString("parent_id", mcp.Description("Parent node id or bookmark name")),
		mcp.WithString("name", mcp.Description("Node text"), mcp.Required()),
		mcp.WithString("note", mcp.Description("Optional note body")),
	)
}

func createNodeHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("name", "")
		if name == "" {
			return toolError(fmt.Errorf("name is required"))
		}

		parentID, err := resolveNodeID(ctx, deps.Store, req.GetString("parent_id", ""))
		if err != nil {
			return toolError(err)
		}

		id, err := deps.Engine.CreateNode(ctx, parentID, name, req.GetString("note", ""))
		if err != nil {
			return writeError(err)
		}
		return jsonResult(map[string]string{"id": id, "status": "created"})
	}
}

// --- update_node ---

func updateNodeTool() mcp.Tool {
	return mcp.NewTool("update_node",
		mcp.WithDescription("Update a node's text and/or note."),
		mcp.WithString("node_id", mcp.Description("Node id or bookmark name"), mcp.Required()),
		mcp.WithString("name", mcp.Description("New node text")),
		mcp.WithString("note", mcp.Description("New note body")),
	)
}

func updateNodeHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireNodeID(ctx, deps.Store, req)
		if err != nil {
			return toolError(err)
		}

		var name, note *string
		if v, ok := req.GetArguments()["name"].(string); ok {
			name = &v
		}
		if v, ok := req.GetArguments()["note"].(string); ok {
			note = &v
		}

		if err := deps.Engine.UpdateNode(ctx, id, name, note); err != nil {
			return writeError(err)
		}
		return jsonResult(map[string]string{"id": id, "status": "updated"})
	}
}

// --- move_node ---

func moveNodeTool() mcp.Tool {
	return mcp.NewTool("move_node",
		mcp.WithDescription("Move a node under a new parent at a position among its siblings."),
		mcp.WithString("node_id", mcp.Description("Node id or bookmark name"), mcp.Required()),
		mcp.WithString("new_parent_id", mcp.Description("New parent node id or bookmark name; omit for top level")),
		mcp.WithNumber("priority", mcp.Description("Position among the new siblings (0 = first)")),
	)
}

func moveNodeHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireNodeID(ctx, deps.Store, req)
		if err != nil {
			return toolError(err)
		}
		parentID, err := resolveNodeID(ctx, deps.Store, req.GetString("new_parent_id", ""))
		if err != nil {
			return toolError(err)
		}

		if err := deps.Engine.MoveNode(ctx, id, parentID, req.GetInt("priority", 0)); err != nil {
			return writeError(err)
		}
		return jsonResult(map[string]string{"id": id, "status": "moved"})
	}
}

// --- delete_node ---

func deleteNodeTool() mcp.Tool {
	return mcp.NewTool("delete_node",
		mcp.WithDescription("Delete a node and its entire subtree."),
		mcp.WithString("node_id", mcp.Description("Node id or bookmark name"), mcp.Required()),
	)
}

func deleteNodeHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireNodeID(ctx, deps.Store, req)
		if err != nil {
			return toolError(err)
		}

		if err := deps.Engine.DeleteNode(ctx, id); err != nil {
			return writeError(err)
		}
		return jsonResult(map[string]string{"id": id, "status": "deleted"})
	}
}

// --- complete_node ---

func completeNodeTool() mcp.Tool {
	return mcp.NewTool("complete_node",
		mcp.WithDescription("Mark a node complete or incomplete."),
		mcp.WithString("node_id", mcp.Description("Node id or bookmark name"), mcp.Required()),
		mcp.WithBoolean("completed", mcp.Description("true to complete, false to uncomplete (default true)")),
	)
}

func completeNodeHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireNodeID(ctx, deps.Store, req)
		if err != nil {
			return toolError(err)
		}
		completed := req.GetBool("completed", true)

		if err := deps.Engine.SetCompleted(ctx, id, completed); err != nil {
			return writeError(err)
		}
		status := "completed"
		if !completed {
			status = "uncompleted"
		}
		return jsonResult(map[string]string{"id": id, "status": status})
	}
}

// --- force_sync ---

func forceSyncTool() mcp.Tool {
	return mcp.NewTool("force_sync",
		mcp.WithDescription("Force a full refresh of the local mirror from the remote outline. Rate-limited; reports how long to wait when called too soon."),
	)
}

func forceSyncHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		err := deps.Engine.FullSync(ctx)

		var rl *engine.RateLimitError
		switch {
		case err == nil:
			count, cerr := deps.Store.CountNodesContext(ctx)
			if cerr != nil {
				return toolError(cerr)
			}
			return jsonResult(map[string]interface{}{
				"status":     "synced",
				"node_count": count,
			})
		case errors.As(err, &rl):
			return jsonResult(map[string]interface{}{
				"status":              "rate_limited",
				"retry_after_seconds": int(rl.RetryAfter.Seconds() + 0.5),
			})
		case errors.Is(err, engine.ErrSyncInProgress):
			return jsonResult(map[string]string{"status": "sync_in_progress"})
		default:
			return writeError(err)
		}
	}
}

// --- save_bookmark / delete_bookmark ---

func saveBookmarkTool() mcp.Tool {
	return mcp.NewTool("save_bookmark",
		mcp.WithDescription("Save a named bookmark pointing at a node, with optional free-text context."),
		mcp.WithString("name", mcp.Description("Bookmark name"), mcp.Required()),
		mcp.WithString("node_id", mcp.Description("Target node id"), mcp.Required()),
		mcp.WithString("context", mcp.Description("Free-text context shown alongside the bookmark")),
	)
}

func saveBookmarkHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b := &cache.Bookmark{
			Name:    req.GetString("name", ""),
			NodeID:  req.GetString("node_id", ""),
			Context: req.GetString("context", ""),
		}
		if b.Name == "" || b.NodeID == "" {
			return toolError(fmt.Errorf("name and node_id are required"))
		}
		if err := deps.Store.PutBookmark(ctx, b); err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]string{"name": b.Name, "status": "saved"})
	}
}

func deleteBookmarkTool() mcp.Tool {
	return mcp.NewTool("delete_bookmark",
		mcp.WithDescription("Delete a bookmark by name."),
		mcp.WithString("name", mcp.Description("Bookmark name"), mcp.Required()),
	)
}

func deleteBookmarkHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("name", "")
		if name == "" {
			return toolError(fmt.Errorf("name is required"))
		}
		if err := deps.Store.DeleteBookmark(ctx, name); err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]string{"name": name, "status": "deleted"})
	}
}

// requireNodeID resolves the mandatory node_id argument, accepting either a
// raw id or a bookmark name.
func requireNodeID(ctx context.Context, store *cache.DB, req mcp.CallToolRequest) (string, error) {
	ref := req.GetString("node_id", "")
	if ref == "" {
		return "", fmt.Errorf("node_id is required")
	}
	return resolveNodeID(ctx, store, ref)
}
