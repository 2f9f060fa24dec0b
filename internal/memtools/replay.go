package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ReplayTool handles the mem_replay MCP tool.
type ReplayTool struct {
	store *memory.Store
}

// NewReplayTool creates a ReplayTool.
func NewReplayTool(store *memory.Store) *ReplayTool {
	return &ReplayTool{store: store}
}

// Definition returns the MCP tool definition for mem_replay.
func (t *ReplayTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_replay",
		mcp.WithDescription(
			"Replay unapplied resolution events so observation statuses converge "+
				"after importing another machine's backup. Idempotent.",
		),
		mcp.WithBoolean("backfill",
			mcp.Description("Also synthesize events for pre-event-log status changes (default: true)"),
		),
	)
}

// Handle processes the mem_replay tool call.
func (t *ReplayTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var backfilled int
	if boolArg(req, "backfill", true) {
		n, err := t.store.BackfillResolutionEvents()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("backfill failed: %v", err)), nil
		}
		backfilled = n
	}

	result, err := t.store.ReplayUnappliedEvents()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("replay failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Replay complete: %d applied, %d skipped, %d backfilled.",
		result.Applied, result.Skipped, backfilled,
	)), nil
}
