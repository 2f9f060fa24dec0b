package memtools

import (
	"context"
	"log"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// RecordTool handles the mem_record MCP tool, the hook write path for
// tool executions. It is fire-and-forget: any store failure is logged
// and the call still acks so the agent is never stalled by its memory.
type RecordTool struct {
	store  *memory.Store
	notify ActivityFunc
}

// NewRecordTool creates a RecordTool.
func NewRecordTool(store *memory.Store, notify ActivityFunc) *RecordTool {
	return &RecordTool{store: store, notify: notify}
}

// Definition returns the MCP tool definition for mem_record.
func (t *RecordTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_record",
		mcp.WithDescription(
			"Record one tool execution into the activity log. Called by agent hooks; "+
				"always succeeds from the caller's point of view.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session the execution belongs to"),
		),
		mcp.WithString("tool",
			mcp.Required(),
			mcp.Description("Tool name (e.g. Edit, Bash, Read)"),
		),
		mcp.WithString("prompt_batch_id",
			mcp.Description("Batch from mem_prompt_start, when known"),
		),
		mcp.WithString("file_path",
			mcp.Description("File the tool touched, if any"),
		),
		mcp.WithString("summary",
			mcp.Description("Short output summary"),
		),
		mcp.WithBoolean("success",
			mcp.Description("Whether the tool succeeded (default: true)"),
		),
		mcp.WithString("error",
			mcp.Description("Error message when success is false"),
		),
	)
}

// Handle processes the mem_record tool call.
func (t *RecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.notify.touch()

	_, err := t.store.AddActivity(memory.AddActivityParams{
		SessionID:     req.GetString("session_id", ""),
		PromptBatchID: req.GetString("prompt_batch_id", ""),
		ToolName:      req.GetString("tool", ""),
		FilePath:      req.GetString("file_path", ""),
		OutputSummary: req.GetString("summary", ""),
		Success:       boolArg(req, "success", true),
		ErrorMessage:  req.GetString("error", ""),
	})
	if err != nil {
		log.Printf("WARNING: memtools: mem_record: %v", err)
	}
	return mcp.NewToolResultText("ok"), nil
}

// PromptStartTool handles the mem_prompt_start MCP tool. Fire-and-forget.
type PromptStartTool struct {
	store  *memory.Store
	notify ActivityFunc
}

// NewPromptStartTool creates a PromptStartTool.
func NewPromptStartTool(store *memory.Store, notify ActivityFunc) *PromptStartTool {
	return &PromptStartTool{store: store, notify: notify}
}

// Definition returns the MCP tool definition for mem_prompt_start.
func (t *PromptStartTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_prompt_start",
		mcp.WithDescription("Open a prompt batch: one user prompt and everything it triggers."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session the prompt belongs to"),
		),
	)
}

// Handle processes the mem_prompt_start tool call.
func (t *PromptStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.notify.touch()

	id, err := t.store.CreatePromptBatch(req.GetString("session_id", ""))
	if err != nil {
		log.Printf("WARNING: memtools: mem_prompt_start: %v", err)
		return mcp.NewToolResultText("ok"), nil
	}
	return mcp.NewToolResultText(id), nil
}

// PromptEndTool handles the mem_prompt_end MCP tool. Fire-and-forget.
type PromptEndTool struct {
	store  *memory.Store
	notify ActivityFunc
}

// NewPromptEndTool creates a PromptEndTool.
func NewPromptEndTool(store *memory.Store, notify ActivityFunc) *PromptEndTool {
	return &PromptEndTool{store: store, notify: notify}
}

// Definition returns the MCP tool definition for mem_prompt_end.
func (t *PromptEndTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_prompt_end",
		mcp.WithDescription("Close a prompt batch, queueing it for background summarization."),
		mcp.WithString("prompt_batch_id",
			mcp.Required(),
			mcp.Description("Batch from mem_prompt_start"),
		),
		mcp.WithString("summary",
			mcp.Description("Optional one-line summary of the response"),
		),
	)
}

// Handle processes the mem_prompt_end tool call.
func (t *PromptEndTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.notify.touch()

	err := t.store.EndPromptBatch(req.GetString("prompt_batch_id", ""), req.GetString("summary", ""))
	if err != nil {
		log.Printf("WARNING: memtools: mem_prompt_end: %v", err)
	}
	return mcp.NewToolResultText("ok"), nil
}
