package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/retrieval"
	"github.com/mark3labs/mcp-go/mcp"
)

// ContextTool handles the mem_context MCP tool.
type ContextTool struct {
	engine *retrieval.Engine
}

// NewContextTool creates a ContextTool.
func NewContextTool(engine *retrieval.Engine) *ContextTool {
	return &ContextTool{engine: engine}
}

// Definition returns the MCP tool definition for mem_context.
func (t *ContextTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_context",
		mcp.WithDescription(
			"Assemble a context block for a task: the most relevant memories and indexed "+
				"code, highest confidence first, packed under a token budget.",
		),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("What you are about to do"),
		),
		mcp.WithArray("current_files",
			mcp.Description("Files currently in focus, used to sharpen retrieval"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget for the block (default: 2000)"),
		),
	)
}

// Handle processes the mem_context tool call.
func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := req.GetString("task", "")
	if task == "" {
		return mcp.NewToolResultError("'task' is required"), nil
	}

	block, err := t.engine.BuildContext(ctx, task, stringList(req, "current_files"), intArg(req, "max_tokens", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("context build failed: %v", err)), nil
	}
	if block == "" {
		return mcp.NewToolResultText("No relevant context found."), nil
	}
	return mcp.NewToolResultText(block), nil
}
