package memtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/vector"
	"github.com/mark3labs/mcp-go/mcp"
)

// ReindexTool handles the mem_reindex MCP tool.
type ReindexTool struct {
	store *memory.Store
	index *vector.Index
}

// NewReindexTool creates a ReindexTool.
func NewReindexTool(store *memory.Store, index *vector.Index) *ReindexTool {
	return &ReindexTool{store: store, index: index}
}

// Definition returns the MCP tool definition for mem_reindex.
func (t *ReindexTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_reindex",
		mcp.WithDescription(
			"Rebuild the memory vector collection from stored observations. "+
				"Returns busy if a build is already running; try again shortly.",
		),
		mcp.WithNumber("limit",
			mcp.Description("Max observations to index (default: 1000)"),
		),
	)
}

// Handle processes the mem_reindex tool call.
func (t *ReindexTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	observations, err := t.store.RecentObservations(intArg(req, "limit", 1000))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load observations: %v", err)), nil
	}

	docs := make([]vector.Document, 0, len(observations))
	for _, obs := range observations {
		text := obs.Observation
		if obs.Context != "" {
			text += "\n" + obs.Context
		}
		docs = append(docs, vector.Document{
			ID:             obs.ID,
			Text:           text,
			CreatedAtEpoch: obs.CreatedAtEpoch,
			Metadata:       map[string]string{"memory_type": string(obs.MemoryType)},
		})
	}

	if err := t.index.RebuildCollection(ctx, vector.CollectionMemory, docs); err != nil {
		if errors.Is(err, vector.ErrIndexBusy) {
			return mcp.NewToolResultError("index build already running; retry shortly"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("reindex failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reindexed %d observations.", len(docs))), nil
}
