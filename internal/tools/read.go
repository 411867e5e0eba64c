package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"wfmirror/internal/search"
	"wfmirror/internal/tree"
)

func registerReadTools(s *server.MCPServer, deps *Deps) {
	s.AddTool(searchTool(), searchHandler(deps))
	s.AddTool(readSubtreeTool(), readSubtreeHandler(deps))
	s.AddTool(listBookmarksTool(), listBookmarksHandler(deps))
}

// --- search ---

func searchTool() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription("Fuzzy-search the outline by free text. Returns ranked matches with breadcrumb paths and child previews."),
		mcp.WithString("query",
			mcp.Description("Search text; word order and small typos are tolerated"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default 10, max 50)"),
		),
	)
}

func searchHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return toolError(errEmptyQuery)
		}
		limit := search.ClampLimit(req.GetInt("limit", 0))

		status := deps.Engine.EnsureFresh(ctx)
		count, err := deps.Store.CountNodesContext(ctx)
		if err != nil {
			return toolError(err)
		}
		if count == 0 {
			return needsSyncResult()
		}

		results, err := search.Run(ctx, deps.Store, query, limit)
		if err != nil {
			return toolError(err)
		}

		out := struct {
			CacheStatus string      `json:"cache_status"`
			Results     []searchHit `json:"results"`
		}{
			CacheStatus: string(status),
			Results:     make([]searchHit, 0, len(results)),
		}
		for _, r := range results {
			out.Results = append(out.Results, searchHit{
				ID:            r.Node.ID,
				Name:          r.Node.Name,
				Note:          r.Node.Note,
				Completed:     r.Node.Completed,
				ChildrenCount: r.Node.ChildrenCount,
				Score:         r.Score,
				Path:          r.Path,
				Preview:       r.Preview,
			})
		}
		return jsonResult(out)
	}
}

type searchHit struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Note          string   `json:"note,omitempty"`
	Completed     bool     `json:"completed"`
	ChildrenCount int      `json:"children_count"`
	Score         float64  `json:"score"`
	Path          string   `json:"path"`
	Preview       []string `json:"preview,omitempty"`
}

// --- read_subtree ---

func readSubtreeTool() mcp.Tool {
	return mcp.NewTool("read_subtree",
		mcp.WithDescription("Read a nested subtree of the outline. Accepts a node id or a bookmark name; omit node_id for the top level."),
		mcp.WithString("node_id",
			mcp.Description("Node id or bookmark name to read from (omit for top-level nodes)"),
		),
		mcp.WithNumber("depth",
			mcp.Description("How many levels to expand (default 2, max 10)"),
		),
		mcp.WithString("format",
			mcp.Description("'outline' for indented text (default), 'json' for nested records"),
		),
	)
}

func readSubtreeHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref := req.GetString("node_id", "")
		depth := tree.ClampDepth(req.GetInt("depth", 2))
		format := req.GetString("format", "outline")

		deps.Engine.EnsureFresh(ctx)
		count, err := deps.Store.CountNodesContext(ctx)
		if err != nil {
			return toolError(err)
		}
		if count == 0 {
			return needsSyncResult()
		}

		nodeID, err := resolveNodeID(ctx, deps.Store, ref)
		if err != nil {
			return toolError(err)
		}

		// A bookmark target is read explicitly, so the exclusion list
		// only applies to unanchored reads.
		exclude := deps.ExcludedNames
		if nodeID != "" && nodeID != ref {
			exclude = nil
		}

		var forest []*tree.Node
		if nodeID == "" {
			forest, err = tree.BuildRoots(ctx, deps.Store, depth, exclude)
		} else {
			var node *tree.Node
			node, err = tree.Build(ctx, deps.Store, nodeID, depth, exclude)
			if node != nil {
				forest = []*tree.Node{node}
			}
		}
		if err != nil {
			return toolError(err)
		}

		if format == "json" {
			return jsonResult(forest)
		}
		return mcp.NewToolResultText(tree.RenderOutline(forest)), nil
	}
}

// --- list_bookmarks ---

func listBookmarksTool() mcp.Tool {
	return mcp.NewTool("list_bookmarks",
		mcp.WithDescription("List saved bookmarks: named shortcuts into the outline."),
	)
}

func listBookmarksHandler(deps *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bookmarks, err := deps.Store.ListBookmarks(ctx)
		if err != nil {
			return toolError(err)
		}
		if len(bookmarks) == 0 {
			return mcp.NewToolResultText("No bookmarks saved."), nil
		}
		return jsonResult(bookmarks)
	}
}
