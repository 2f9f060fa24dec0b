package memory

import "fmt"

// exportVersion identifies the backup stream format.
const exportVersion = "1"

// ─── Export ──────────────────────────────────────────────────────────────────

// Export dumps the entire store as a serializable backup stream. Another
// machine imports the dump wholesale, then runs ReplayUnappliedEvents to
// reconcile observation status.
func (s *Store) Export() (*ExportData, error) {
	data := &ExportData{
		Version:         exportVersion,
		ExportedAtEpoch: nowEpoch(),
		MachineID:       s.machineID,
	}

	var err error
	if data.Sessions, err = s.exportSessions(); err != nil {
		return nil, err
	}
	if data.PromptBatches, err = s.exportBatches(); err != nil {
		return nil, err
	}
	if data.Activities, err = s.queryActivities(
		`SELECT id, prompt_batch_id, session_id, tool_name, file_path, output_summary, success, error_message, created_at_epoch, source_machine_id
		 FROM activities ORDER BY created_at_epoch`, "export_activities",
	); err != nil {
		return nil, err
	}
	if data.Observations, err = s.queryObservations(
		`SELECT id, session_id, observation, memory_type, context, importance, status, created_at_epoch, source_machine_id
		 FROM observations ORDER BY created_at_epoch`, "export_observations",
	); err != nil {
		return nil, err
	}
	if data.ResolutionEvents, err = s.exportEvents(); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) exportSessions() ([]Session, error) {
	return s.querySessions("export_sessions",
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at_epoch`)
}

func (s *Store) exportBatches() ([]PromptBatch, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, started_at_epoch, ended_at_epoch, response_summary, processed
		 FROM prompt_batches ORDER BY started_at_epoch`,
	)
	if err != nil {
		return nil, E(KindStorage, "export_batches", err)
	}
	return scanBatches(rows, "export_batches")
}

func (s *Store) exportEvents() ([]ResolutionEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, observation_id, action, timestamp_epoch, source_machine_id, content_hash, applied
		 FROM resolution_events ORDER BY timestamp_epoch`,
	)
	if err != nil {
		return nil, E(KindStorage, "export_events", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ResolutionEvent
	for rows.Next() {
		var ev ResolutionEvent
		if err := rows.Scan(
			&ev.ID, &ev.ObservationID, &ev.Action, &ev.TimestampEpoch,
			&ev.SourceMachineID, &ev.ContentHash, &ev.Applied,
		); err != nil {
			return nil, E(KindStorage, "export_events", err)
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}

// ─── Import ──────────────────────────────────────────────────────────────────

// Import loads a backup stream produced by another machine's Export.
// Every insert is id-keyed INSERT OR IGNORE so importing the same backup
// twice is a no-op. Resolution events land unapplied; the caller is
// expected to run ReplayUnappliedEvents afterwards.
func (s *Store) Import(data *ExportData) (*ImportResult, error) {
	if data == nil {
		return nil, Ef(KindValidation, "import", "nil backup data")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, E(KindStorage, "import", err)
	}
	defer func() { _ = tx.Rollback() }()

	result := &ImportResult{}

	for _, sess := range data.Sessions {
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO sessions (id, agent, project_root, started_at_epoch, ended_at_epoch, status, processed, title, parent_session_id, parent_session_reason, source_machine_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.Agent, sess.ProjectRoot, sess.StartedAtEpoch, sess.EndedAtEpoch,
			sess.Status, sess.Processed, sess.Title, sess.ParentSessionID,
			sess.ParentSessionReason, sess.SourceMachineID,
		)
		if err != nil {
			return nil, E(KindStorage, "import", fmt.Errorf("session %s: %w", sess.ID, err))
		}
		n, _ := res.RowsAffected()
		result.SessionsImported += int(n)
	}

	for _, b := range data.PromptBatches {
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO prompt_batches (id, session_id, started_at_epoch, ended_at_epoch, response_summary, processed)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, b.SessionID, b.StartedAtEpoch, b.EndedAtEpoch, b.ResponseSummary, b.Processed,
		)
		if err != nil {
			return nil, E(KindStorage, "import", fmt.Errorf("batch %s: %w", b.ID, err))
		}
		n, _ := res.RowsAffected()
		result.BatchesImported += int(n)
	}

	for _, a := range data.Activities {
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO activities (id, prompt_batch_id, session_id, tool_name, file_path, output_summary, success, error_message, created_at_epoch, source_machine_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.PromptBatchID, a.SessionID, a.ToolName,
			nullableString(a.FilePath), nullableString(a.OutputSummary),
			a.Success, nullableString(a.ErrorMessage), a.CreatedAtEpoch, a.SourceMachineID,
		)
		if err != nil {
			return nil, E(KindStorage, "import", fmt.Errorf("activity %s: %w", a.ID, err))
		}
		n, _ := res.RowsAffected()
		result.ActivitiesImported += int(n)
	}

	for _, o := range data.Observations {
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO observations (id, session_id, observation, memory_type, context, importance, status, created_at_epoch, source_machine_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.SessionID, o.Observation, NormalizeMemoryType(string(o.MemoryType)),
			nullableString(o.Context), o.Importance, o.Status, o.CreatedAtEpoch, o.SourceMachineID,
		)
		if err != nil {
			return nil, E(KindStorage, "import", fmt.Errorf("observation %s: %w", o.ID, err))
		}
		n, _ := res.RowsAffected()
		result.ObservationsImported += int(n)
	}

	for _, ev := range data.ResolutionEvents {
		hash := ev.ContentHash
		if hash == "" {
			hash = eventContentHash(ev.ObservationID, ev.Action, ev.TimestampEpoch, ev.SourceMachineID)
		}
		id := ev.ID
		if id == "" {
			id = newID()
		}
		// Imported events always land unapplied, even if the source
		// machine had applied them: this store's replay decides anew.
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO resolution_events (id, observation_id, action, timestamp_epoch, source_machine_id, content_hash, applied)
			 VALUES (?, ?, ?, ?, ?, ?, 0)`,
			id, ev.ObservationID, ev.Action, ev.TimestampEpoch, ev.SourceMachineID, hash,
		)
		if err != nil {
			return nil, E(KindStorage, "import", fmt.Errorf("resolution event %s: %w", id, err))
		}
		n, _ := res.RowsAffected()
		result.EventsImported += int(n)
	}

	if err := tx.Commit(); err != nil {
		return nil, E(KindStorage, "import", err)
	}
	return result, nil
}
