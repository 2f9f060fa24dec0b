package memtools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ExportTool handles the mem_export MCP tool.
type ExportTool struct {
	store *memory.Store
}

// NewExportTool creates an ExportTool.
func NewExportTool(store *memory.Store) *ExportTool {
	return &ExportTool{store: store}
}

// Definition returns the MCP tool definition for mem_export.
func (t *ExportTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_export",
		mcp.WithDescription(
			"Export the full memory store as a JSON backup that another "+
				"machine can import.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File to write the backup to"),
		),
	)
}

// Handle processes the mem_export tool call.
func (t *ExportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	data, err := t.store.Export()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export encode: %v", err)), nil
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export write: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Exported %d sessions, %d observations, %d resolution events to %s.",
		len(data.Sessions), len(data.Observations), len(data.ResolutionEvents), path,
	)), nil
}

// ImportTool handles the mem_import MCP tool.
type ImportTool struct {
	store *memory.Store
}

// NewImportTool creates an ImportTool.
func NewImportTool(store *memory.Store) *ImportTool {
	return &ImportTool{store: store}
}

// Definition returns the MCP tool definition for mem_import.
func (t *ImportTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_import",
		mcp.WithDescription(
			"Import another machine's backup, then replay resolution events "+
				"so observation statuses converge. Importing twice is a no-op.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Backup file produced by mem_export"),
		),
	)
}

// Handle processes the mem_import tool call.
func (t *ImportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import read: %v", err)), nil
	}
	var data memory.ExportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import parse: %v", err)), nil
	}

	result, err := t.store.Import(&data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import failed: %v", err)), nil
	}
	replay, err := t.store.ReplayUnappliedEvents()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("replay after import: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Imported %d sessions, %d batches, %d activities, %d observations, %d events. Replay applied %d, skipped %d.",
		result.SessionsImported, result.BatchesImported, result.ActivitiesImported,
		result.ObservationsImported, result.EventsImported,
		replay.Applied, replay.Skipped,
	)), nil
}
