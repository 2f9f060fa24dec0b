package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// maxObservationLength caps stored observation text.
const maxObservationLength = 4000

// ─── Observations ────────────────────────────────────────────────────────────

// StoreObservation persists a durable memory item. The memory type is
// normalized onto the closed enum and importance is clamped to 1..5.
func (s *Store) StoreObservation(p StoreObservationParams) (string, error) {
	if p.SessionID == "" {
		return "", Ef(KindValidation, "store_observation", "session id is required")
	}
	if strings.TrimSpace(p.Observation) == "" {
		return "", Ef(KindValidation, "store_observation", "observation text is required")
	}

	text := p.Observation
	if len(text) > maxObservationLength {
		text = text[:maxObservationLength] + "... [truncated]"
	}
	importance := p.Importance
	if importance <= 0 {
		importance = 3
	}
	if importance > 5 {
		importance = 5
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", E(KindStorage, "store_observation", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, p.SessionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", Ef(KindValidation, "store_observation", "session %s does not exist", p.SessionID)
		}
		return "", E(KindStorage, "store_observation", err)
	}

	id := newID()
	if _, err := tx.Exec(
		`INSERT INTO observations (id, session_id, observation, memory_type, context, importance, status, created_at_epoch, source_machine_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.SessionID, text, NormalizeMemoryType(p.MemoryType),
		nullableString(p.Context), importance, ObservationActive, nowEpoch(), s.machineID,
	); err != nil {
		return "", E(KindStorage, "store_observation", err)
	}
	if err := tx.Commit(); err != nil {
		return "", E(KindStorage, "store_observation", err)
	}
	return id, nil
}

// GetObservation retrieves a single observation by ID.
func (s *Store) GetObservation(id string) (*StoredObservation, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, observation, memory_type, context, importance, status, created_at_epoch, source_machine_id
		 FROM observations WHERE id = ?`, id,
	)
	var o StoredObservation
	var ctx *string
	if err := row.Scan(
		&o.ID, &o.SessionID, &o.Observation, &o.MemoryType, &ctx,
		&o.Importance, &o.Status, &o.CreatedAtEpoch, &o.SourceMachineID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, E(KindStorage, "get_observation", fmt.Errorf("observation %s: %w", id, ErrNotFound))
		}
		return nil, E(KindStorage, "get_observation", err)
	}
	o.Context = derefString(ctx)
	return &o, nil
}

// ObservationsForSession returns a session's observations, newest first.
func (s *Store) ObservationsForSession(sessionID string) ([]StoredObservation, error) {
	return s.queryObservations(
		`SELECT id, session_id, observation, memory_type, context, importance, status, created_at_epoch, source_machine_id
		 FROM observations WHERE session_id = ? ORDER BY created_at_epoch DESC`,
		"observations_for_session", sessionID,
	)
}

// RecentObservations returns active observations across all machines,
// newest first. Used for retrieval-side indexing and context assembly.
func (s *Store) RecentObservations(limit int) ([]StoredObservation, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryObservations(
		`SELECT id, session_id, observation, memory_type, context, importance, status, created_at_epoch, source_machine_id
		 FROM observations WHERE status = ? ORDER BY created_at_epoch DESC LIMIT ?`,
		"recent_observations", ObservationActive, limit,
	)
}

func (s *Store) queryObservations(query, op string, args ...any) ([]StoredObservation, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, E(KindStorage, op, err)
	}
	defer func() { _ = rows.Close() }()

	var results []StoredObservation
	for rows.Next() {
		var o StoredObservation
		var ctx *string
		if err := rows.Scan(
			&o.ID, &o.SessionID, &o.Observation, &o.MemoryType, &ctx,
			&o.Importance, &o.Status, &o.CreatedAtEpoch, &o.SourceMachineID,
		); err != nil {
			return nil, E(KindStorage, op, err)
		}
		o.Context = derefString(ctx)
		results = append(results, o)
	}
	return results, rows.Err()
}

// ─── Search (FTS5) ───────────────────────────────────────────────────────────

// SearchObservations performs full-text search over observation text and
// context. Ranking ties are broken by recency.
func (s *Store) SearchObservations(query string, opts SearchOptions) ([]ObservationSearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return nil, Ef(KindSearch, "search_observations", "query is empty")
	}
	if opts.MemoryType != "" && string(NormalizeMemoryType(opts.MemoryType)) != opts.MemoryType {
		return nil, Ef(KindSearch, "search_observations", "unknown memory type %q", opts.MemoryType)
	}

	sqlStr := `
		SELECT o.id, o.session_id, o.observation, o.memory_type, o.context, o.importance,
		       o.status, o.created_at_epoch, o.source_machine_id, fts.rank
		FROM observations_fts fts
		JOIN observations o ON o.rowid = fts.rowid
		WHERE observations_fts MATCH ?
	`
	args := []any{ftsQuery}

	if opts.MemoryType != "" {
		sqlStr += " AND o.memory_type = ?"
		args = append(args, opts.MemoryType)
	}
	if opts.SessionID != "" {
		sqlStr += " AND o.session_id = ?"
		args = append(args, opts.SessionID)
	}

	sqlStr += " ORDER BY fts.rank, o.created_at_epoch DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, E(KindStorage, "search_observations", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ObservationSearchResult
	for rows.Next() {
		var sr ObservationSearchResult
		var ctx *string
		if err := rows.Scan(
			&sr.ID, &sr.SessionID, &sr.Observation, &sr.MemoryType, &ctx,
			&sr.Importance, &sr.Status, &sr.CreatedAtEpoch, &sr.SourceMachineID, &sr.Rank,
		); err != nil {
			return nil, E(KindStorage, "search_observations", err)
		}
		sr.Context = derefString(ctx)
		results = append(results, sr)
	}
	return results, rows.Err()
}

// SearchActivities performs full-text search over activity output
// summaries, tool names, and file paths.
func (s *Store) SearchActivities(query string, limit int) ([]ActivitySearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return nil, Ef(KindSearch, "search_activities", "query is empty")
	}

	rows, err := s.db.Query(`
		SELECT a.id, a.prompt_batch_id, a.session_id, a.tool_name, a.file_path, a.output_summary,
		       a.success, a.error_message, a.created_at_epoch, a.source_machine_id, fts.rank
		FROM activities_fts fts
		JOIN activities a ON a.rowid = fts.rowid
		WHERE activities_fts MATCH ?
		ORDER BY fts.rank, a.created_at_epoch DESC LIMIT ?`,
		ftsQuery, limit,
	)
	if err != nil {
		return nil, E(KindStorage, "search_activities", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ActivitySearchResult
	for rows.Next() {
		var sr ActivitySearchResult
		var filePath, outputSummary, errorMessage *string
		if err := rows.Scan(
			&sr.ID, &sr.PromptBatchID, &sr.SessionID, &sr.ToolName,
			&filePath, &outputSummary, &sr.Success, &errorMessage,
			&sr.CreatedAtEpoch, &sr.SourceMachineID, &sr.Rank,
		); err != nil {
			return nil, E(KindStorage, "search_activities", err)
		}
		sr.FilePath = derefString(filePath)
		sr.OutputSummary = derefString(outputSummary)
		sr.ErrorMessage = derefString(errorMessage)
		results = append(results, sr)
	}
	return results, rows.Err()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats returns aggregate store statistics.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM sessions", &stats.TotalSessions},
		{"SELECT COUNT(*) FROM prompt_batches", &stats.TotalBatches},
		{"SELECT COUNT(*) FROM activities", &stats.TotalActivities},
		{"SELECT COUNT(*) FROM observations", &stats.TotalObservations},
		{"SELECT COUNT(*) FROM prompt_batches WHERE processed = 0 AND ended_at_epoch IS NOT NULL", &stats.PendingBatches},
		{"SELECT COUNT(*) FROM resolution_events WHERE applied = 0", &stats.UnappliedEvents},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, E(KindStorage, "stats", err)
		}
	}
	return stats, nil
}
