package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/recall/internal/embed"
	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/vector"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatsTool handles the mem_stats MCP tool.
type StatsTool struct {
	store *memory.Store
	chain *embed.Chain
	index *vector.Index
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(store *memory.Store, chain *embed.Chain, index *vector.Index) *StatsTool {
	return &StatsTool{store: store, chain: chain, index: index}
}

// Definition returns the MCP tool definition for mem_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_stats",
		mcp.WithDescription("Report store counts, pending work, embedding backend health, and index size."),
	)
}

// Handle processes the mem_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Memory store (machine %s):\n", t.store.MachineID())
	fmt.Fprintf(&b, "  sessions:      %d\n", stats.TotalSessions)
	fmt.Fprintf(&b, "  batches:       %d (%d pending)\n", stats.TotalBatches, stats.PendingBatches)
	fmt.Fprintf(&b, "  activities:    %d\n", stats.TotalActivities)
	fmt.Fprintf(&b, "  observations:  %d\n", stats.TotalObservations)
	fmt.Fprintf(&b, "  unapplied resolution events: %d\n", stats.UnappliedEvents)

	if t.chain != nil {
		b.WriteString("\nEmbedding backends:\n")
		for _, s := range t.chain.Stats() {
			state := "unavailable"
			if s.Available {
				state = "available"
			}
			fmt.Fprintf(&b, "  %s (%dd, %s): %d ok, %d failed\n",
				s.Name, s.Dimensions, state, s.Successes, s.Failures)
		}
	}

	if t.index != nil {
		b.WriteString("\nVector index:\n")
		fmt.Fprintf(&b, "  status: %s\n", t.index.Status())
		for _, col := range []string{vector.CollectionCode, vector.CollectionMemory} {
			if n, err := t.index.Count(col); err == nil {
				fmt.Fprintf(&b, "  %s: %d documents\n", col, n)
			}
		}
	}

	return mcp.NewToolResultText(b.String()), nil
}
