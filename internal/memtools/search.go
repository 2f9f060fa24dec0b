package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// SearchTool handles the mem_search MCP tool.
type SearchTool struct {
	store *memory.Store
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(store *memory.Store) *SearchTool {
	return &SearchTool{store: store}
}

// Definition returns the MCP tool definition for mem_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_search",
		mcp.WithDescription(
			"Search observations from past coding sessions. Use this to find gotchas, "+
				"bug fixes, decisions, discoveries, and trade-offs recorded before.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query — natural language or keywords"),
		),
		mcp.WithString("type",
			mcp.Description("Filter by type: gotcha, bug_fix, decision, discovery, trade_off"),
		),
		mcp.WithString("session_id",
			mcp.Description("Restrict to one session"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10)"),
		),
	)
}

// Handle processes the mem_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	results, err := t.store.SearchObservations(query, memory.SearchOptions{
		MemoryType: req.GetString("type", ""),
		SessionID:  req.GetString("session_id", ""),
		Limit:      intArg(req, "limit", 10),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No observations found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d observations:\n\n", len(results))

	for i, r := range results {
		fmt.Fprintf(&b, "[%d] (%s, importance %d, %s)\n    %s\n",
			i+1, r.MemoryType, r.Importance, r.Status,
			memory.Truncate(r.Observation, 300),
		)
		if r.Context != "" {
			fmt.Fprintf(&b, "    context: %s\n", memory.Truncate(r.Context, 200))
		}
		b.WriteString("\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}
