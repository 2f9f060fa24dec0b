package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ResolveTool handles the mem_resolve MCP tool.
type ResolveTool struct {
	store *memory.Store
}

// NewResolveTool creates a ResolveTool.
func NewResolveTool(store *memory.Store) *ResolveTool {
	return &ResolveTool{store: store}
}

// Definition returns the MCP tool definition for mem_resolve.
func (t *ResolveTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_resolve",
		mcp.WithDescription(
			"Record that an observation was resolved, superseded, or reactivated. "+
				"The transition is logged as an event so other machines converge on it.",
		),
		mcp.WithString("observation_id",
			mcp.Required(),
			mcp.Description("Observation to transition"),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of: resolved, superseded, reactivated"),
		),
	)
}

// Handle processes the mem_resolve tool call.
func (t *ResolveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	observationID := req.GetString("observation_id", "")
	if observationID == "" {
		return mcp.NewToolResultError("'observation_id' is required"), nil
	}
	action := memory.ResolutionAction(req.GetString("action", ""))

	hash, err := t.store.RecordResolution(observationID, action)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recorded %s for %s (event %s).", action, observationID, memory.Truncate(hash, 12))), nil
}
