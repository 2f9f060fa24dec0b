package memtools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/recall/internal/embed"
	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/retrieval"
	"github.com/HendryAvila/recall/internal/vector"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- Test helpers ---

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.New(memory.Config{DataDir: t.TempDir(), MachineID: "machine-test"})
	if err != nil {
		t.Fatalf("setup: create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestIndex(t *testing.T) *vector.Index {
	t.Helper()
	ix, err := vector.New(embed.NewChain(embed.NewLocal(32)), vector.DefaultConfig())
	if err != nil {
		t.Fatalf("setup: create index: %v", err)
	}
	return ix
}

func startSession(t *testing.T, s *memory.Store, id string) {
	t.Helper()
	if _, err := s.CreateSession(memory.CreateSessionParams{
		ID: id, Agent: "claude-code", ProjectRoot: "/tmp/project",
	}); err != nil {
		t.Fatalf("setup: create session: %v", err)
	}
}

func callTool(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// isErrorResult checks if the result is a tool error.
func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- RememberTool / SearchTool ---

func TestRememberTool_StoresAndIndexes(t *testing.T) {
	store := newTestStore(t)
	index := newTestIndex(t)
	startSession(t, store, "sess-1")

	tool := NewRememberTool(store, index)
	result, err := tool.Handle(context.Background(), callTool(map[string]any{
		"observation": "migrations must run before the FTS triggers exist",
		"session_id":  "sess-1",
		"type":        "gotcha",
		"importance":  float64(4),
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if isErrorResult(result) {
		t.Fatalf("expected success, got error: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), "Remembered as ") {
		t.Errorf("unexpected result: %s", getResultText(result))
	}

	if n, _ := index.Count(vector.CollectionMemory); n != 1 {
		t.Errorf("index count = %d, want the observation indexed immediately", n)
	}
}

func TestRememberTool_RequiresObservation(t *testing.T) {
	tool := NewRememberTool(newTestStore(t), nil)
	result, err := tool.Handle(context.Background(), callTool(map[string]any{"session_id": "sess-1"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !isErrorResult(result) {
		t.Error("missing observation should be a tool error")
	}
}

func TestSearchTool(t *testing.T) {
	store := newTestStore(t)
	startSession(t, store, "sess-1")
	if _, err := store.StoreObservation(memory.StoreObservationParams{
		SessionID:   "sess-1",
		Observation: "the websocket reconnect loop swallows context cancellation",
		MemoryType:  "gotcha",
	}); err != nil {
		t.Fatal(err)
	}

	tool := NewSearchTool(store)

	result, err := tool.Handle(context.Background(), callTool(map[string]any{"query": "websocket reconnect"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	text := getResultText(result)
	if !strings.Contains(text, "Found 1 observations") || !strings.Contains(text, "gotcha") {
		t.Errorf("unexpected result: %s", text)
	}

	result, _ = tool.Handle(context.Background(), callTool(map[string]any{"query": "nonexistent topic"}))
	if !strings.Contains(getResultText(result), "No observations found") {
		t.Errorf("unexpected empty result: %s", getResultText(result))
	}

	result, _ = tool.Handle(context.Background(), callTool(map[string]any{}))
	if !isErrorResult(result) {
		t.Error("missing query should be a tool error")
	}
}

// --- Hook write path (fire-and-forget) ---

func TestRecordTool_AcksDespiteStoreFailure(t *testing.T) {
	store := newTestStore(t)
	var touched int
	tool := NewRecordTool(store, func() { touched++ })

	// No such session: the store rejects the write, the caller still
	// gets an ack.
	result, err := tool.Handle(context.Background(), callTool(map[string]any{
		"session_id": "ghost", "tool": "Edit",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if isErrorResult(result) {
		t.Error("hook write path must never surface errors")
	}
	if getResultText(result) != "ok" {
		t.Errorf("result = %q, want ok", getResultText(result))
	}
	if touched != 1 {
		t.Errorf("activity touched %d times, want 1", touched)
	}
}

func TestRecordTool_WritesActivity(t *testing.T) {
	store := newTestStore(t)
	startSession(t, store, "sess-1")
	tool := NewRecordTool(store, nil)

	_, err := tool.Handle(context.Background(), callTool(map[string]any{
		"session_id": "sess-1",
		"tool":       "Bash",
		"summary":    "go test ./...",
		"success":    false,
		"error":      "exit 1",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	activities, err := store.ActivitiesForSession("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(activities) != 1 || activities[0].Success || activities[0].ErrorMessage != "exit 1" {
		t.Errorf("activities = %+v", activities)
	}
}

func TestPromptTools_OpenAndCloseBatch(t *testing.T) {
	store := newTestStore(t)
	startSession(t, store, "sess-1")

	start := NewPromptStartTool(store, nil)
	result, err := start.Handle(context.Background(), callTool(map[string]any{"session_id": "sess-1"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	batchID := getResultText(result)
	if batchID == "" || batchID == "ok" {
		t.Fatalf("batch id = %q", batchID)
	}

	end := NewPromptEndTool(store, nil)
	if _, err := end.Handle(context.Background(), callTool(map[string]any{
		"prompt_batch_id": batchID, "summary": "done",
	})); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	batch, err := store.GetPromptBatch(batchID)
	if err != nil {
		t.Fatal(err)
	}
	if batch.EndedAtEpoch == nil {
		t.Error("batch should be closed")
	}
}

func TestSessionStartTool_LinksParent(t *testing.T) {
	store := newTestStore(t)
	tool := NewSessionStartTool(store, nil)

	first, err := tool.Handle(context.Background(), callTool(map[string]any{
		"agent": "claude-code", "project_root": "/tmp/project",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	parentID := getResultText(first)
	if err := store.EndSession(parentID); err != nil {
		t.Fatal(err)
	}

	second, err := tool.Handle(context.Background(), callTool(map[string]any{
		"agent": "claude-code", "project_root": "/tmp/project",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	childID := getResultText(second)

	child, err := store.GetSession(childID)
	if err != nil {
		t.Fatal(err)
	}
	if child.ParentSessionID == nil || *child.ParentSessionID != parentID {
		t.Errorf("parent link = %v, want %s", child.ParentSessionID, parentID)
	}
}

func TestSessionEndTool_ClosesOpenBatches(t *testing.T) {
	store := newTestStore(t)
	startSession(t, store, "sess-1")
	batchID, err := store.CreatePromptBatch("sess-1")
	if err != nil {
		t.Fatal(err)
	}

	tool := NewSessionEndTool(store, nil)
	result, err := tool.Handle(context.Background(), callTool(map[string]any{"session_id": "sess-1"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if isErrorResult(result) {
		t.Fatalf("expected success, got: %s", getResultText(result))
	}

	batch, err := store.GetPromptBatch(batchID)
	if err != nil {
		t.Fatal(err)
	}
	if batch.EndedAtEpoch == nil {
		t.Error("ending the session should close its open batches")
	}
}

// --- ResolveTool / ReplayTool ---

func TestResolveTool(t *testing.T) {
	store := newTestStore(t)
	startSession(t, store, "sess-1")
	obsID, err := store.StoreObservation(memory.StoreObservationParams{
		SessionID: "sess-1", Observation: "flaky test masks a real race",
	})
	if err != nil {
		t.Fatal(err)
	}

	tool := NewResolveTool(store)
	result, err := tool.Handle(context.Background(), callTool(map[string]any{
		"observation_id": obsID, "action": "resolved",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if isErrorResult(result) {
		t.Fatalf("expected success, got: %s", getResultText(result))
	}

	obs, _ := store.GetObservation(obsID)
	if obs.Status != memory.ObservationResolved {
		t.Errorf("status = %s, want resolved", obs.Status)
	}

	result, _ = tool.Handle(context.Background(), callTool(map[string]any{
		"observation_id": obsID, "action": "archived",
	}))
	if !isErrorResult(result) {
		t.Error("unknown action should be a tool error")
	}
}

func TestReplayTool(t *testing.T) {
	store := newTestStore(t)
	startSession(t, store, "sess-1")
	obsID, err := store.StoreObservation(memory.StoreObservationParams{
		SessionID: "sess-1", Observation: "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.ImportResolutionEvent(memory.ResolutionEvent{
		ObservationID: obsID, Action: memory.ActionResolved,
		TimestampEpoch: 1700000000, SourceMachineID: "remote",
	}); err != nil {
		t.Fatal(err)
	}

	tool := NewReplayTool(store)
	result, err := tool.Handle(context.Background(), callTool(map[string]any{}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(getResultText(result), "1 applied, 0 skipped") {
		t.Errorf("unexpected result: %s", getResultText(result))
	}

	obs, _ := store.GetObservation(obsID)
	if obs.Status != memory.ObservationResolved {
		t.Errorf("status = %s, want resolved after replay", obs.Status)
	}
}

// --- Export / Import ---

func TestExportImportTools_RoundTrip(t *testing.T) {
	src := newTestStore(t)
	startSession(t, src, "sess-1")
	if _, err := src.StoreObservation(memory.StoreObservationParams{
		SessionID: "sess-1", Observation: "observation travels in backups",
	}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "backup.json")
	exportResult, err := NewExportTool(src).Handle(context.Background(), callTool(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if isErrorResult(exportResult) {
		t.Fatalf("export error: %s", getResultText(exportResult))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	dstDir := t.TempDir()
	dst, err := memory.New(memory.Config{DataDir: dstDir, MachineID: "other-machine"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dst.Close() })

	importResult, err := NewImportTool(dst).Handle(context.Background(), callTool(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	text := getResultText(importResult)
	if !strings.Contains(text, "Imported 1 sessions") || !strings.Contains(text, "1 observations") {
		t.Errorf("unexpected import result: %s", text)
	}
}

// --- ContextTool / ReindexTool / StatsTool ---

func TestContextTool(t *testing.T) {
	index := newTestIndex(t)
	if err := index.IndexDocuments(context.Background(), vector.CollectionMemory, []vector.Document{
		{ID: "obs-1", Text: "the scheduler stops its timer in deep sleep",
			Metadata: map[string]string{"memory_type": "discovery"}},
	}); err != nil {
		t.Fatal(err)
	}
	engine, err := retrieval.New(index, retrieval.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	tool := NewContextTool(engine)
	result, err := tool.Handle(context.Background(), callTool(map[string]any{
		"task": "change the scheduler timer behavior",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(getResultText(result), "## Relevant Context") {
		t.Errorf("unexpected context: %s", getResultText(result))
	}

	result, _ = tool.Handle(context.Background(), callTool(map[string]any{}))
	if !isErrorResult(result) {
		t.Error("missing task should be a tool error")
	}
}

func TestReindexTool(t *testing.T) {
	store := newTestStore(t)
	index := newTestIndex(t)
	startSession(t, store, "sess-1")
	for _, text := range []string{"first observation", "second observation"} {
		if _, err := store.StoreObservation(memory.StoreObservationParams{
			SessionID: "sess-1", Observation: text,
		}); err != nil {
			t.Fatal(err)
		}
	}

	tool := NewReindexTool(store, index)
	result, err := tool.Handle(context.Background(), callTool(map[string]any{}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(getResultText(result), "Reindexed 2 observations") {
		t.Errorf("unexpected result: %s", getResultText(result))
	}
	if n, _ := index.Count(vector.CollectionMemory); n != 2 {
		t.Errorf("index count = %d, want 2", n)
	}
}

func TestIndexCodeTool(t *testing.T) {
	index := newTestIndex(t)

	tool := NewIndexCodeTool(index)
	result, err := tool.Handle(context.Background(), callTool(map[string]any{
		"path": "internal/auth/login.go",
		"chunks": []any{
			"func Login validates the refresh token before issuing a session",
			"func Logout revokes the token and clears the cookie",
		},
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(getResultText(result), "Indexed 2 chunks from internal/auth/login.go as code") {
		t.Errorf("unexpected result: %s", getResultText(result))
	}
	if n, _ := index.Count(vector.CollectionCode); n != 2 {
		t.Errorf("code collection count = %d, want 2", n)
	}
	if n, _ := index.Count(vector.CollectionMemory); n != 0 {
		t.Errorf("memory collection count = %d, want 0", n)
	}

	// The chunks must come back through code search with their path.
	hits, err := index.Query(context.Background(), vector.CollectionCode,
		"func Login validates the refresh token before issuing a session", 1, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "internal/auth/login.go" {
		t.Fatalf("hits = %+v, want the indexed file", hits)
	}
	if hits[0].DocType != vector.DocTypeCode {
		t.Errorf("doc type = %s, want code", hits[0].DocType)
	}
}

func TestIndexCodeTool_RequiresPathAndChunks(t *testing.T) {
	tool := NewIndexCodeTool(newTestIndex(t))

	result, _ := tool.Handle(context.Background(), callTool(map[string]any{
		"chunks": []any{"text"},
	}))
	if !isErrorResult(result) {
		t.Error("missing path should be a tool error")
	}

	result, _ = tool.Handle(context.Background(), callTool(map[string]any{
		"path": "main.go",
	}))
	if !isErrorResult(result) {
		t.Error("missing chunks should be a tool error")
	}
}

func TestStatsTool(t *testing.T) {
	store := newTestStore(t)
	startSession(t, store, "sess-1")
	chain := embed.NewChain(embed.NewLocal(32))
	index := newTestIndex(t)

	tool := NewStatsTool(store, chain, index)
	result, err := tool.Handle(context.Background(), callTool(map[string]any{}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	text := getResultText(result)
	for _, want := range []string{"machine-test", "sessions:", "Embedding backends", "local", "Vector index"} {
		if !strings.Contains(text, want) {
			t.Errorf("stats missing %q in: %s", want, text)
		}
	}
}
