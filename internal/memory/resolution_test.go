package memory_test

import (
	"testing"
	"time"

	"github.com/HendryAvila/recall/internal/memory"
)

func storeObservation(t *testing.T, s *memory.Store, sessionID, text string) string {
	t.Helper()
	id, err := s.StoreObservation(memory.StoreObservationParams{
		SessionID:   sessionID,
		Observation: text,
	})
	if err != nil {
		t.Fatalf("store observation: %v", err)
	}
	return id
}

// ─── Recording ───────────────────────────────────────────────────────────────

func TestRecordResolution_WritesEventAndStatusTogether(t *testing.T) {
	s := newTestStore(t)
	ensureSession(t, s, "sess-1")
	obs := storeObservation(t, s, "sess-1", "flaky auth test masks a real race")

	hash, err := s.RecordResolution(obs, memory.ActionResolved)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if hash == "" {
		t.Fatal("expected a content hash")
	}

	got, _ := s.GetObservation(obs)
	if got.Status != memory.ObservationResolved {
		t.Errorf("status = %s, want resolved", got.Status)
	}
	// The local event is already applied; nothing awaits replay.
	n, _ := s.CountUnappliedEvents()
	if n != 0 {
		t.Errorf("unapplied = %d, want 0", n)
	}
}

func TestRecordResolution_UnknownAction(t *testing.T) {
	s := newTestStore(t)
	ensureSession(t, s, "sess-1")
	obs := storeObservation(t, s, "sess-1", "x")

	if _, err := s.RecordResolution(obs, memory.ResolutionAction("archived")); err == nil {
		t.Error("unknown action should be rejected")
	}
}

func TestImportResolutionEvent_ContentHashDedup(t *testing.T) {
	s := newTestStore(t)
	ensureSession(t, s, "sess-1")
	obs := storeObservation(t, s, "sess-1", "x")

	ev := memory.ResolutionEvent{
		ObservationID:   obs,
		Action:          memory.ActionResolved,
		TimestampEpoch:  1700000000,
		SourceMachineID: "laptop",
	}
	inserted, err := s.ImportResolutionEvent(ev)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !inserted {
		t.Fatal("first import should insert")
	}

	// Same fact again, even with a different event id: ignored.
	ev.ID = "some-other-id"
	inserted, err = s.ImportResolutionEvent(ev)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if inserted {
		t.Error("duplicate content should not insert")
	}

	n, _ := s.CountUnappliedEvents()
	if n != 1 {
		t.Errorf("unapplied = %d, want exactly 1", n)
	}
}

// ─── Replay ──────────────────────────────────────────────────────────────────

func TestReplay_LastWriterWins(t *testing.T) {
	s := newTestStore(t)
	ensureSession(t, s, "sess-1")
	obs := storeObservation(t, s, "sess-1", "cache invalidation is wrong on branch switch")

	base := time.Now().Unix()
	events := []memory.ResolutionEvent{
		{ObservationID: obs, Action: memory.ActionResolved, TimestampEpoch: base, SourceMachineID: "laptop"},
		{ObservationID: obs, Action: memory.ActionReactivated, TimestampEpoch: base + 10, SourceMachineID: "desktop"},
	}
	for _, ev := range events {
		if _, err := s.ImportResolutionEvent(ev); err != nil {
			t.Fatalf("import: %v", err)
		}
	}

	result, err := s.ReplayUnappliedEvents()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Applied != 2 {
		t.Errorf("applied = %d, want 2", result.Applied)
	}

	got, _ := s.GetObservation(obs)
	if got.Status != memory.ObservationActive {
		t.Errorf("status = %s, want active (later reactivation wins)", got.Status)
	}
}

func TestReplay_TimestampTieBrokenByMachineID(t *testing.T) {
	s := newTestStore(t)
	ensureSession(t, s, "sess-1")
	obs := storeObservation(t, s, "sess-1", "x")

	ts := time.Now().Unix()
	for _, ev := range []memory.ResolutionEvent{
		{ObservationID: obs, Action: memory.ActionResolved, TimestampEpoch: ts, SourceMachineID: "aaa"},
		{ObservationID: obs, Action: memory.ActionSuperseded, TimestampEpoch: ts, SourceMachineID: "zzz"},
	} {
		if _, err := s.ImportResolutionEvent(ev); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.ReplayUnappliedEvents(); err != nil {
		t.Fatalf("replay: %v", err)
	}
	got, _ := s.GetObservation(obs)
	// Lexically greater machine id wins the tie regardless of import order.
	if got.Status != memory.ObservationSuperseded {
		t.Errorf("status = %s, want superseded from machine zzz", got.Status)
	}
}

func TestReplay_ConsidersAlreadyAppliedHistory(t *testing.T) {
	s := newTestStore(t)
	ensureSession(t, s, "sess-1")
	obs := storeObservation(t, s, "sess-1", "x")

	// Local resolution now; imported event is older.
	if _, err := s.RecordResolution(obs, memory.ActionResolved); err != nil {
		t.Fatal(err)
	}
	old := memory.ResolutionEvent{
		ObservationID:   obs,
		Action:          memory.ActionReactivated,
		TimestampEpoch:  time.Now().Unix() - 3600,
		SourceMachineID: "remote",
	}
	if _, err := s.ImportResolutionEvent(old); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ReplayUnappliedEvents(); err != nil {
		t.Fatalf("replay: %v", err)
	}
	got, _ := s.GetObservation(obs)
	if got.Status != memory.ObservationResolved {
		t.Errorf("status = %s, want resolved (newer local event outranks the import)", got.Status)
	}
}

func TestReplay_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ensureSession(t, s, "sess-1")
	obs := storeObservation(t, s, "sess-1", "x")

	ev := memory.ResolutionEvent{
		ObservationID: obs, Action: memory.ActionResolved,
		TimestampEpoch: time.Now().Unix(), SourceMachineID: "remote",
	}
	if _, err := s.ImportResolutionEvent(ev); err != nil {
		t.Fatal(err)
	}

	first, err := s.ReplayUnappliedEvents()
	if err != nil {
		t.Fatalf("first replay: %v", err)
	}
	if first.Applied != 1 {
		t.Errorf("first applied = %d, want 1", first.Applied)
	}

	second, err := s.ReplayUnappliedEvents()
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if second.Applied != 0 || second.Skipped != 0 {
		t.Errorf("second replay = %+v, want all zeros", second)
	}
}

func TestReplay_SkipsCorruptEvents(t *testing.T) {
	s := newTestStore(t)
	ensureSession(t, s, "sess-1")
	obs := storeObservation(t, s, "sess-1", "x")

	for _, ev := range []memory.ResolutionEvent{
		{ObservationID: obs, Action: memory.ResolutionAction("exploded"), TimestampEpoch: 200, SourceMachineID: "remote"},
		{ObservationID: obs, Action: memory.ActionResolved, TimestampEpoch: 100, SourceMachineID: "remote"},
	} {
		if _, err := s.ImportResolutionEvent(ev); err != nil {
			t.Fatal(err)
		}
	}

	result, err := s.ReplayUnappliedEvents()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Skipped)
	}
	if result.Applied != 1 {
		t.Errorf("applied = %d, want 1", result.Applied)
	}

	// The corrupt event must not block the valid one, and must drain.
	got, _ := s.GetObservation(obs)
	if got.Status != memory.ObservationResolved {
		t.Errorf("status = %s, want resolved", got.Status)
	}
	n, _ := s.CountUnappliedEvents()
	if n != 0 {
		t.Errorf("unapplied = %d, want 0 after replay", n)
	}
}

func TestBackfillResolutionEvents(t *testing.T) {
	s := newTestStore(t)
	ensureSession(t, s, "sess-1")
	// Regular observations: one tracked by the event log, one still active.
	tracked := storeObservation(t, s, "sess-1", "resolved through the log")
	if _, err := s.RecordResolution(tracked, memory.ActionResolved); err != nil {
		t.Fatal(err)
	}
	storeObservation(t, s, "sess-1", "still active")

	// Simulate a pre-event-log status write via import of a bare
	// observation row with a non-active status.
	if _, err := s.Import(&memory.ExportData{
		Observations: []memory.StoredObservation{{
			ID: "legacy", SessionID: "sess-1", Observation: "legacy resolved",
			MemoryType: memory.MemoryGotcha, Importance: 3,
			Status: memory.ObservationResolved, CreatedAtEpoch: 1000, SourceMachineID: "old-box",
		}},
	}); err != nil {
		t.Fatal(err)
	}

	n, err := s.BackfillResolutionEvents()
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 1 {
		t.Errorf("backfilled %d, want 1 (only the legacy row)", n)
	}

	// Running again creates nothing new.
	n, _ = s.BackfillResolutionEvents()
	if n != 0 {
		t.Errorf("second backfill = %d, want 0", n)
	}
}

// ─── Export / import ─────────────────────────────────────────────────────────

func TestExportImport_RoundTrip(t *testing.T) {
	src := newTestStoreWithConfig(t, memory.Config{DataDir: t.TempDir(), MachineID: "src"})
	dst := newTestStoreWithConfig(t, memory.Config{DataDir: t.TempDir(), MachineID: "dst"})

	ensureSession(t, src, "sess-1")
	batch, err := src.CreatePromptBatch("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := src.EndPromptBatch(batch, "summary"); err != nil {
		t.Fatal(err)
	}
	if _, err := src.AddActivity(memory.AddActivityParams{SessionID: "sess-1", ToolName: "Edit", FilePath: "a.go"}); err != nil {
		t.Fatal(err)
	}
	obs := storeObservation(t, src, "sess-1", "observation travels in backups")
	if _, err := src.RecordResolution(obs, memory.ActionResolved); err != nil {
		t.Fatal(err)
	}

	data, err := src.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	result, err := dst.Import(data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.SessionsImported != 1 || result.BatchesImported != 1 ||
		result.ActivitiesImported != 1 || result.ObservationsImported != 1 ||
		result.EventsImported != 1 {
		t.Errorf("import counts = %+v", result)
	}

	// Events land unapplied; replay converges the status.
	n, _ := dst.CountUnappliedEvents()
	if n != 1 {
		t.Fatalf("unapplied after import = %d, want 1", n)
	}
	if _, err := dst.ReplayUnappliedEvents(); err != nil {
		t.Fatalf("replay: %v", err)
	}
	got, err := dst.GetObservation(obs)
	if err != nil {
		t.Fatalf("imported observation missing: %v", err)
	}
	if got.Status != memory.ObservationResolved {
		t.Errorf("status = %s, want resolved after replay", got.Status)
	}
}

func TestImport_TwiceIsNoOp(t *testing.T) {
	src := newTestStoreWithConfig(t, memory.Config{DataDir: t.TempDir(), MachineID: "src"})
	dst := newTestStoreWithConfig(t, memory.Config{DataDir: t.TempDir(), MachineID: "dst"})

	ensureSession(t, src, "sess-1")
	storeObservation(t, src, "sess-1", "x")

	data, err := src.Export()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dst.Import(data); err != nil {
		t.Fatal(err)
	}

	second, err := dst.Import(data)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.SessionsImported != 0 || second.ObservationsImported != 0 {
		t.Errorf("second import should import nothing, got %+v", second)
	}
}
