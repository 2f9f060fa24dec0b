package memory

import (
	"database/sql"
	"errors"
	"fmt"
)

// ─── Prompt batches ──────────────────────────────────────────────────────────

// CreatePromptBatch opens a new batch for a session. The session must
// exist; the insert and the existence check share one transaction so a
// failure leaves no partial batch.
func (s *Store) CreatePromptBatch(sessionID string) (string, error) {
	if sessionID == "" {
		return "", Ef(KindValidation, "create_prompt_batch", "session id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", E(KindStorage, "create_prompt_batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", Ef(KindValidation, "create_prompt_batch", "session %s does not exist", sessionID)
		}
		return "", E(KindStorage, "create_prompt_batch", err)
	}

	id := newID()
	if _, err := tx.Exec(
		`INSERT INTO prompt_batches (id, session_id, started_at_epoch) VALUES (?, ?, ?)`,
		id, sessionID, nowEpoch(),
	); err != nil {
		return "", E(KindStorage, "create_prompt_batch", err)
	}
	if err := tx.Commit(); err != nil {
		return "", E(KindStorage, "create_prompt_batch", err)
	}
	return id, nil
}

// EndPromptBatch closes a batch with an optional response summary.
func (s *Store) EndPromptBatch(id, responseSummary string) error {
	if id == "" {
		return Ef(KindValidation, "end_prompt_batch", "batch id is required")
	}
	_, err := s.db.Exec(
		`UPDATE prompt_batches SET ended_at_epoch = ?, response_summary = ?
		 WHERE id = ? AND ended_at_epoch IS NULL`,
		nowEpoch(), nullableString(responseSummary), id,
	)
	if err != nil {
		return E(KindStorage, "end_prompt_batch", err)
	}
	return nil
}

// SetBatchResponseSummary records the distilled summary for a batch
// that summarization produced after the batch was already closed.
func (s *Store) SetBatchResponseSummary(id, summary string) error {
	_, err := s.db.Exec(
		`UPDATE prompt_batches SET response_summary = ? WHERE id = ?`,
		nullableString(summary), id,
	)
	if err != nil {
		return E(KindStorage, "set_batch_response_summary", err)
	}
	return nil
}

// MarkBatchProcessed records that summarization for a batch is done.
// Callers must only invoke this after the batch's observations are
// durably stored; a partially processed batch stays reprocessable.
func (s *Store) MarkBatchProcessed(id string) error {
	_, err := s.db.Exec(`UPDATE prompt_batches SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return E(KindStorage, "mark_batch_processed", err)
	}
	return nil
}

// GetPromptBatch retrieves a batch by ID.
func (s *Store) GetPromptBatch(id string) (*PromptBatch, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, started_at_epoch, ended_at_epoch, response_summary, processed
		 FROM prompt_batches WHERE id = ?`, id,
	)
	var b PromptBatch
	if err := row.Scan(&b.ID, &b.SessionID, &b.StartedAtEpoch, &b.EndedAtEpoch, &b.ResponseSummary, &b.Processed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, E(KindStorage, "get_prompt_batch", fmt.Errorf("batch %s: %w", id, ErrNotFound))
		}
		return nil, E(KindStorage, "get_prompt_batch", err)
	}
	return &b, nil
}

// PendingBatches returns ended, unprocessed batches owned by the local
// machine, oldest first. This is the background processor's work queue.
func (s *Store) PendingBatches(limit int) ([]PromptBatch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT b.id, b.session_id, b.started_at_epoch, b.ended_at_epoch, b.response_summary, b.processed
		 FROM prompt_batches b
		 JOIN sessions s ON s.id = b.session_id
		 WHERE b.processed = 0 AND b.ended_at_epoch IS NOT NULL AND s.source_machine_id = ?
		 ORDER BY b.ended_at_epoch LIMIT ?`,
		s.machineID, limit,
	)
	if err != nil {
		return nil, E(KindStorage, "pending_batches", err)
	}
	return scanBatches(rows, "pending_batches")
}

// StuckBatches returns local batches that were opened but never ended
// and are older than the stuck threshold — in-flight work orphaned by a
// crashed or killed agent.
func (s *Store) StuckBatches() ([]PromptBatch, error) {
	cutoff := nowEpoch() - int64(s.cfg.StuckBatchAge.Seconds())
	rows, err := s.db.Query(
		`SELECT b.id, b.session_id, b.started_at_epoch, b.ended_at_epoch, b.response_summary, b.processed
		 FROM prompt_batches b
		 JOIN sessions s ON s.id = b.session_id
		 WHERE b.ended_at_epoch IS NULL AND b.started_at_epoch < ? AND s.source_machine_id = ?
		 ORDER BY b.started_at_epoch`,
		cutoff, s.machineID,
	)
	if err != nil {
		return nil, E(KindStorage, "stuck_batches", err)
	}
	return scanBatches(rows, "stuck_batches")
}

// BatchesForSession returns all batches of a session in batch order.
func (s *Store) BatchesForSession(sessionID string) ([]PromptBatch, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, started_at_epoch, ended_at_epoch, response_summary, processed
		 FROM prompt_batches WHERE session_id = ? ORDER BY started_at_epoch`,
		sessionID,
	)
	if err != nil {
		return nil, E(KindStorage, "batches_for_session", err)
	}
	return scanBatches(rows, "batches_for_session")
}

func scanBatches(rows *sql.Rows, op string) ([]PromptBatch, error) {
	defer func() { _ = rows.Close() }()
	var results []PromptBatch
	for rows.Next() {
		var b PromptBatch
		if err := rows.Scan(&b.ID, &b.SessionID, &b.StartedAtEpoch, &b.EndedAtEpoch, &b.ResponseSummary, &b.Processed); err != nil {
			return nil, E(KindStorage, op, err)
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

// ─── Activities ──────────────────────────────────────────────────────────────

// AddActivity records one tool execution. When a batch id is supplied it
// must belong to the given session; the invariant is enforced inside the
// write transaction.
func (s *Store) AddActivity(p AddActivityParams) (string, error) {
	if p.SessionID == "" {
		return "", Ef(KindValidation, "add_activity", "session id is required")
	}
	if p.ToolName == "" {
		return "", Ef(KindValidation, "add_activity", "tool name is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", E(KindStorage, "add_activity", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, p.SessionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", Ef(KindValidation, "add_activity", "session %s does not exist", p.SessionID)
		}
		return "", E(KindStorage, "add_activity", err)
	}

	if p.PromptBatchID != "" {
		var batchSession string
		err := tx.QueryRow(`SELECT session_id FROM prompt_batches WHERE id = ?`, p.PromptBatchID).Scan(&batchSession)
		if errors.Is(err, sql.ErrNoRows) {
			return "", Ef(KindValidation, "add_activity", "batch %s does not exist", p.PromptBatchID)
		}
		if err != nil {
			return "", E(KindStorage, "add_activity", err)
		}
		if batchSession != p.SessionID {
			return "", Ef(KindValidation, "add_activity", "batch %s belongs to session %s, not %s", p.PromptBatchID, batchSession, p.SessionID)
		}
	}

	id := newID()
	if _, err := tx.Exec(
		`INSERT INTO activities (id, prompt_batch_id, session_id, tool_name, file_path, output_summary, success, error_message, created_at_epoch, source_machine_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nullableString(p.PromptBatchID), p.SessionID, p.ToolName,
		nullableString(p.FilePath), nullableString(p.OutputSummary),
		p.Success, nullableString(p.ErrorMessage), nowEpoch(), s.machineID,
	); err != nil {
		return "", E(KindStorage, "add_activity", err)
	}
	if err := tx.Commit(); err != nil {
		return "", E(KindStorage, "add_activity", err)
	}
	return id, nil
}

// AssignActivityBatch links an unassigned activity to a batch. The only
// mutation an activity permits after insert.
func (s *Store) AssignActivityBatch(activityID, batchID string) error {
	batch, err := s.GetPromptBatch(batchID)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(
		`UPDATE activities SET prompt_batch_id = ?
		 WHERE id = ? AND session_id = ? AND prompt_batch_id IS NULL`,
		batchID, activityID, batch.SessionID,
	)
	if err != nil {
		return E(KindStorage, "assign_activity_batch", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return Ef(KindValidation, "assign_activity_batch", "activity %s missing, already assigned, or from another session", activityID)
	}
	return nil
}

// ActivitiesForBatch returns a batch's activities in execution order.
func (s *Store) ActivitiesForBatch(batchID string) ([]Activity, error) {
	return s.queryActivities(
		`SELECT id, prompt_batch_id, session_id, tool_name, file_path, output_summary, success, error_message, created_at_epoch, source_machine_id
		 FROM activities WHERE prompt_batch_id = ? ORDER BY created_at_epoch`,
		"activities_for_batch", batchID,
	)
}

// ActivitiesForSession returns all activities of a session in execution order.
func (s *Store) ActivitiesForSession(sessionID string) ([]Activity, error) {
	return s.queryActivities(
		`SELECT id, prompt_batch_id, session_id, tool_name, file_path, output_summary, success, error_message, created_at_epoch, source_machine_id
		 FROM activities WHERE session_id = ? ORDER BY created_at_epoch`,
		"activities_for_session", sessionID,
	)
}

// ActivityCountForSession reports how many activities a session recorded.
func (s *Store) ActivityCountForSession(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM activities WHERE session_id = ?`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, E(KindStorage, "activity_count", err)
	}
	return n, nil
}

func (s *Store) queryActivities(query, op string, args ...any) ([]Activity, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, E(KindStorage, op, err)
	}
	defer func() { _ = rows.Close() }()

	var results []Activity
	for rows.Next() {
		var a Activity
		var filePath, outputSummary, errorMessage *string
		if err := rows.Scan(
			&a.ID, &a.PromptBatchID, &a.SessionID, &a.ToolName,
			&filePath, &outputSummary, &a.Success, &errorMessage,
			&a.CreatedAtEpoch, &a.SourceMachineID,
		); err != nil {
			return nil, E(KindStorage, op, err)
		}
		a.FilePath = derefString(filePath)
		a.OutputSummary = derefString(outputSummary)
		a.ErrorMessage = derefString(errorMessage)
		results = append(results, a)
	}
	return results, rows.Err()
}
