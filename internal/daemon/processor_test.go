package daemon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HendryAvila/recall/internal/daemon"
	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/summarize"
)

func newStore(t *testing.T, cfg memory.Config) *memory.Store {
	t.Helper()
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	if cfg.MachineID == "" {
		cfg.MachineID = "machine-test"
	}
	s, err := memory.New(cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newProcessor(t *testing.T, s *memory.Store, sum summarize.Summarizer) *daemon.Processor {
	t.Helper()
	p := daemon.NewProcessor(context.Background(), s, sum, nil, daemon.ProcessorConfig{
		BatchLimit: 10, SessionLimit: 20, Workers: 1, QueueSize: 4,
	})
	t.Cleanup(p.Close)
	return p
}

func endedSession(t *testing.T, s *memory.Store, id string) {
	t.Helper()
	if _, err := s.CreateSession(memory.CreateSessionParams{
		ID: id, Agent: "claude-code", ProjectRoot: "/tmp/app",
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.EndSession(id); err != nil {
		t.Fatal(err)
	}
}

// ─── Full cycle ──────────────────────────────────────────────────────────────

func TestRunCycle_SummarizesAndFinishesSession(t *testing.T) {
	s := newStore(t, memory.Config{StaleSessionAge: 12 * time.Hour, StuckBatchAge: time.Hour})

	if _, err := s.CreateSession(memory.CreateSessionParams{
		ID: "sess-1", Agent: "claude-code", ProjectRoot: "/tmp/app",
	}); err != nil {
		t.Fatal(err)
	}
	batch, err := s.CreatePromptBatch("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []memory.AddActivityParams{
		{SessionID: "sess-1", PromptBatchID: batch, ToolName: "Write", FilePath: "/tmp/app/main.go", Success: true},
		{SessionID: "sess-1", PromptBatchID: batch, ToolName: "Edit", FilePath: "/tmp/app/util.go", Success: true},
		{SessionID: "sess-1", PromptBatchID: batch, ToolName: "Read", FilePath: "/tmp/app/go.mod", Success: true},
		{SessionID: "sess-1", PromptBatchID: batch, ToolName: "Bash", OutputSummary: "go test ./...", Success: false, ErrorMessage: "exit 1"},
	} {
		if _, err := s.AddActivity(p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.EndPromptBatch(batch, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.EndSession("sess-1"); err != nil {
		t.Fatal(err)
	}

	static := summarize.NewStatic(summarize.Response{
		Observations: []summarize.Observation{
			{Text: "auth middleware caches tokens for sixty seconds", MemoryType: "discovery", Importance: 4},
		},
		SessionSummary: "Fixed login token refresh",
	})
	p := newProcessor(t, s, static)

	p.RunCycle(context.Background())
	p.Close() // wait out the summarization task

	// The request handed to the summarizer reflects the activity record.
	if len(static.Calls) != 1 {
		t.Fatalf("summarizer called %d times, want 1", len(static.Calls))
	}
	req := static.Calls[0]
	if len(req.FilesCreated) != 1 || req.FilesCreated[0] != "/tmp/app/main.go" {
		t.Errorf("files created = %v", req.FilesCreated)
	}
	if len(req.FilesModified) != 1 || req.FilesModified[0] != "/tmp/app/util.go" {
		t.Errorf("files modified = %v", req.FilesModified)
	}
	if len(req.FilesRead) != 1 || req.FilesRead[0] != "/tmp/app/go.mod" {
		t.Errorf("files read = %v", req.FilesRead)
	}
	if len(req.CommandsRun) != 1 {
		t.Errorf("commands run = %v", req.CommandsRun)
	}
	if len(req.ActivityLines) != 4 {
		t.Errorf("activity lines = %d, want 4", len(req.ActivityLines))
	}

	batches, err := s.BatchesForSession("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if !batches[0].Processed {
		t.Error("batch should be processed after summarization")
	}
	if batches[0].ResponseSummary == nil || *batches[0].ResponseSummary != "Fixed login token refresh" {
		t.Errorf("batch summary = %v", batches[0].ResponseSummary)
	}
	obs, err := s.RecentObservations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 {
		t.Fatalf("stored %d observations, want 1", len(obs))
	}

	// Next cycle: every batch processed, so the session finishes and
	// picks up a title from the batch summary.
	p.RunCycle(context.Background())

	sess, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Processed {
		t.Error("session should be processed once all batches are")
	}
	if sess.Title == nil || *sess.Title != "Fixed login token refresh" {
		t.Errorf("session title = %v", sess.Title)
	}
}

// ─── Zombie handling ─────────────────────────────────────────────────────────

func TestRunCycle_EmptyBatchSkipsSummarizer(t *testing.T) {
	s := newStore(t, memory.Config{StaleSessionAge: 12 * time.Hour, StuckBatchAge: time.Hour})
	endedSession(t, s, "sess-1")
	// One activity outside the batch keeps the session itself alive.
	if _, err := s.AddActivity(memory.AddActivityParams{SessionID: "sess-1", ToolName: "Read", FilePath: "/tmp/app/go.mod", Success: true}); err != nil {
		t.Fatal(err)
	}
	batch, err := s.CreatePromptBatch("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EndPromptBatch(batch, ""); err != nil {
		t.Fatal(err)
	}

	static := summarize.NewStatic(summarize.Response{})
	p := newProcessor(t, s, static)
	p.RunCycle(context.Background())
	p.Close()

	if len(static.Calls) != 0 {
		t.Errorf("summarizer called %d times for an empty batch, want 0", len(static.Calls))
	}
	batches, _ := s.BatchesForSession("sess-1")
	if !batches[0].Processed {
		t.Error("empty batch should be marked processed without summarization")
	}
}

func TestRunCycle_EmptySessionFinishedAndCleaned(t *testing.T) {
	s := newStore(t, memory.Config{StaleSessionAge: 12 * time.Hour, StuckBatchAge: time.Hour})
	endedSession(t, s, "sess-empty")

	static := summarize.NewStatic(summarize.Response{})
	p := newProcessor(t, s, static)
	p.RunCycle(context.Background())
	p.Close()

	if len(static.Calls) != 0 {
		t.Error("empty session should never reach the summarizer")
	}
	if _, err := s.GetSession("sess-empty"); err == nil {
		t.Error("empty processed session should be cleaned up")
	}
}

// ─── Recovery ────────────────────────────────────────────────────────────────

func TestRunCycle_RecoversStuckState(t *testing.T) {
	// Negative ages put the cutoff in the future: everything qualifies.
	s := newStore(t, memory.Config{StaleSessionAge: -time.Hour, StuckBatchAge: -time.Hour})

	if _, err := s.CreateSession(memory.CreateSessionParams{
		ID: "sess-1", Agent: "claude-code", ProjectRoot: "/tmp/app",
	}); err != nil {
		t.Fatal(err)
	}
	batch, err := s.CreatePromptBatch("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddActivity(memory.AddActivityParams{
		SessionID: "sess-1", PromptBatchID: batch, ToolName: "Edit", FilePath: "/tmp/app/main.go", Success: true,
	}); err != nil {
		t.Fatal(err)
	}
	// Neither the batch nor the session was ever ended.

	static := summarize.NewStatic(summarize.Response{
		Observations: []summarize.Observation{{Text: "recovered work", MemoryType: "discovery", Importance: 3}},
	})
	p := newProcessor(t, s, static)
	p.RunCycle(context.Background())
	p.Close()

	sess, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status == memory.SessionActive {
		t.Error("stale session should have been ended")
	}
	batches, _ := s.BatchesForSession("sess-1")
	if batches[0].EndedAtEpoch == nil {
		t.Error("stuck batch should have been ended")
	}
	// The recovered batch flowed straight into summarization.
	if !batches[0].Processed {
		t.Error("recovered batch should be processed in the same cycle")
	}
}

// ─── Phase isolation ─────────────────────────────────────────────────────────

func TestRunCycle_SummarizerFailureDoesNotStopOtherPhases(t *testing.T) {
	s := newStore(t, memory.Config{StaleSessionAge: 12 * time.Hour, StuckBatchAge: time.Hour})

	// A failing batch in one session.
	endedSession(t, s, "sess-fail")
	failBatch, err := s.CreatePromptBatch("sess-fail")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddActivity(memory.AddActivityParams{
		SessionID: "sess-fail", PromptBatchID: failBatch, ToolName: "Edit", FilePath: "/tmp/app/a.go", Success: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.EndPromptBatch(failBatch, ""); err != nil {
		t.Fatal(err)
	}

	// A second, already-processed session waiting only for its title.
	endedSession(t, s, "sess-titled")
	if _, err := s.AddActivity(memory.AddActivityParams{SessionID: "sess-titled", ToolName: "Read", FilePath: "/tmp/app/b.go", Success: true}); err != nil {
		t.Fatal(err)
	}
	titledBatch, err := s.CreatePromptBatch("sess-titled")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EndPromptBatch(titledBatch, "Tuned cache eviction"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkBatchProcessed(titledBatch); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSessionProcessed("sess-titled"); err != nil {
		t.Fatal(err)
	}

	static := &summarize.Static{Err: errors.New("api down")}
	p := newProcessor(t, s, static)
	p.RunCycle(context.Background())
	p.Close()

	// The failed batch stays pending for a retry.
	batches, _ := s.BatchesForSession("sess-fail")
	if batches[0].Processed {
		t.Error("batch should stay pending when summarization fails")
	}
	// Later phases still ran: the title pass happened.
	sess, err := s.GetSession("sess-titled")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title == nil || *sess.Title != "Tuned cache eviction" {
		t.Errorf("title = %v, want batch summary despite summarizer outage", sess.Title)
	}
}

func TestRunCycle_DerivesTitleFromDominantFile(t *testing.T) {
	s := newStore(t, memory.Config{StaleSessionAge: 12 * time.Hour, StuckBatchAge: time.Hour})
	endedSession(t, s, "sess-1")
	for _, path := range []string{"/tmp/app/parser.go", "/tmp/app/parser.go", "/tmp/app/lexer.go"} {
		if _, err := s.AddActivity(memory.AddActivityParams{SessionID: "sess-1", ToolName: "Edit", FilePath: path, Success: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.MarkSessionProcessed("sess-1"); err != nil {
		t.Fatal(err)
	}

	p := newProcessor(t, s, nil)
	p.RunCycle(context.Background())

	sess, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title == nil || *sess.Title != "claude-code work on parser.go" {
		t.Errorf("title = %v", sess.Title)
	}
}
