package memtools

import (
	"context"
	"fmt"
	"log"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// SessionStartTool handles the mem_session_start MCP tool. Fire-and-forget.
type SessionStartTool struct {
	store  *memory.Store
	notify ActivityFunc
}

// NewSessionStartTool creates a SessionStartTool.
func NewSessionStartTool(store *memory.Store, notify ActivityFunc) *SessionStartTool {
	return &SessionStartTool{store: store, notify: notify}
}

// Definition returns the MCP tool definition for mem_session_start.
func (t *SessionStartTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_session_start",
		mcp.WithDescription(
			"Register a new agent session. Links it to a plausible parent session "+
				"when one is found (same project or agent, recently active).",
		),
		mcp.WithString("agent",
			mcp.Required(),
			mcp.Description("Agent name (e.g. claude-code, cursor)"),
		),
		mcp.WithString("project_root",
			mcp.Required(),
			mcp.Description("Absolute path of the project being worked on"),
		),
		mcp.WithString("session_id",
			mcp.Description("Caller-minted session id; generated when absent"),
		),
	)
}

// Handle processes the mem_session_start tool call.
func (t *SessionStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.notify.touch()

	id, err := t.store.CreateSession(memory.CreateSessionParams{
		ID:          req.GetString("session_id", ""),
		Agent:       req.GetString("agent", ""),
		ProjectRoot: req.GetString("project_root", ""),
	})
	if err != nil {
		log.Printf("WARNING: memtools: mem_session_start: %v", err)
		return mcp.NewToolResultText("ok"), nil
	}

	if parent, reason, err := t.store.FindLinkableParentSession(id); err == nil && parent != nil {
		if err := t.store.SetSessionParent(id, parent.ID, reason); err != nil {
			log.Printf("WARNING: memtools: link session %s: %v", id, err)
		}
	}
	return mcp.NewToolResultText(id), nil
}

// SessionEndTool handles the mem_session_end MCP tool. Fire-and-forget.
type SessionEndTool struct {
	store  *memory.Store
	notify ActivityFunc
}

// NewSessionEndTool creates a SessionEndTool.
func NewSessionEndTool(store *memory.Store, notify ActivityFunc) *SessionEndTool {
	return &SessionEndTool{store: store, notify: notify}
}

// Definition returns the MCP tool definition for mem_session_end.
func (t *SessionEndTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_session_end",
		mcp.WithDescription("Mark a session as ended. Safe to call more than once."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to end"),
		),
	)
}

// Handle processes the mem_session_end tool call.
func (t *SessionEndTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.notify.touch()

	sessionID := req.GetString("session_id", "")
	if err := t.store.EndSession(sessionID); err != nil {
		log.Printf("WARNING: memtools: mem_session_end: %v", err)
		return mcp.NewToolResultText("ok"), nil
	}

	// Close any batches the agent left open so they become pending work.
	if batches, err := t.store.BatchesForSession(sessionID); err == nil {
		for _, b := range batches {
			if b.EndedAtEpoch == nil {
				if err := t.store.EndPromptBatch(b.ID, ""); err != nil {
					log.Printf("WARNING: memtools: close batch %s: %v", b.ID, err)
				}
			}
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s ended.", sessionID)), nil
}
