package memtools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HendryAvila/recall/internal/vector"
	"github.com/mark3labs/mcp-go/mcp"
)

// IndexCodeTool handles the mem_index_code MCP tool. This is the
// ingestion path for the code collection: agents push already-chunked
// file text and the index classifies it by path.
type IndexCodeTool struct {
	index *vector.Index
}

// NewIndexCodeTool creates an IndexCodeTool.
func NewIndexCodeTool(index *vector.Index) *IndexCodeTool {
	return &IndexCodeTool{index: index}
}

// Definition returns the MCP tool definition for mem_index_code.
func (t *IndexCodeTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_index_code",
		mcp.WithDescription(
			"Index a source file into the code collection so mem_context and code search "+
				"can surface it. Pass the file text pre-split into chunks of a few hundred "+
				"tokens; chunks are upserted by position, so re-index after big edits.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Repo-relative file path; drives content classification"),
		),
		mcp.WithArray("chunks",
			mcp.Required(),
			mcp.Description("The file's text, split into chunks in file order"),
		),
	)
}

// Handle processes the mem_index_code tool call.
func (t *IndexCodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	chunks := stringList(req, "chunks")
	if len(chunks) == 0 {
		return mcp.NewToolResultError("'chunks' must contain at least one non-empty string"), nil
	}

	docType := vector.ClassifyPath(path)
	now := time.Now().Unix()
	docs := make([]vector.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = vector.Document{
			ID:             fmt.Sprintf("%s#%d", path, i),
			Text:           chunk,
			Path:           path,
			DocType:        docType,
			CreatedAtEpoch: now,
			Metadata:       map[string]string{"chunk": fmt.Sprintf("%d", i)},
		}
	}

	if err := t.index.IndexDocuments(ctx, vector.CollectionCode, docs); err != nil {
		if errors.Is(err, vector.ErrIndexBusy) {
			return mcp.NewToolResultError("index build already running; retry shortly"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("index failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Indexed %d chunks from %s as %s.", len(docs), path, docType)), nil
}
