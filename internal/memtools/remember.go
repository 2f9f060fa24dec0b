package memtools

import (
	"context"
	"fmt"
	"log"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/vector"
	"github.com/mark3labs/mcp-go/mcp"
)

// RememberTool handles the mem_remember MCP tool.
type RememberTool struct {
	store *memory.Store
	index *vector.Index // optional, nil skips immediate indexing
}

// NewRememberTool creates a RememberTool.
func NewRememberTool(store *memory.Store, index *vector.Index) *RememberTool {
	return &RememberTool{store: store, index: index}
}

// Definition returns the MCP tool definition for mem_remember.
func (t *RememberTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_remember",
		mcp.WithDescription(
			"Explicitly store an observation worth remembering across sessions: a gotcha, "+
				"a bug fix, a decision with its rationale, a discovery, or a trade-off.",
		),
		mcp.WithString("observation",
			mcp.Required(),
			mcp.Description("The insight to remember, stated so it is useful without this session's context"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session this observation came from"),
		),
		mcp.WithString("type",
			mcp.Description("One of: gotcha, bug_fix, decision, discovery, trade_off (default: discovery)"),
		),
		mcp.WithString("context",
			mcp.Description("Where this applies: files, subsystem, conditions"),
		),
		mcp.WithNumber("importance",
			mcp.Description("1 (trivial) to 5 (critical), default 3"),
		),
	)
}

// Handle processes the mem_remember tool call.
func (t *RememberTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	observation := req.GetString("observation", "")
	if observation == "" {
		return mcp.NewToolResultError("'observation' is required"), nil
	}
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	id, err := t.store.StoreObservation(memory.StoreObservationParams{
		SessionID:   sessionID,
		Observation: observation,
		MemoryType:  req.GetString("type", ""),
		Context:     req.GetString("context", ""),
		Importance:  intArg(req, "importance", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("remember failed: %v", err)), nil
	}

	if t.index != nil {
		if obs, err := t.store.GetObservation(id); err == nil {
			text := obs.Observation
			if obs.Context != "" {
				text += "\n" + obs.Context
			}
			err := t.index.IndexDocuments(ctx, vector.CollectionMemory, []vector.Document{{
				ID:             obs.ID,
				Text:           text,
				CreatedAtEpoch: obs.CreatedAtEpoch,
				Metadata:       map[string]string{"memory_type": string(obs.MemoryType)},
			}})
			if err != nil {
				// Background reindex picks it up later.
				log.Printf("WARNING: memtools: index observation %s: %v", id, err)
			}
		}
	}

	return mcp.NewToolResultText(fmt.Sprintf("Remembered as %s.", id)), nil
}
