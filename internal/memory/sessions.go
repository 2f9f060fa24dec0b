package memory

import (
	"database/sql"
	"errors"
	"fmt"
)

// ─── Sessions ────────────────────────────────────────────────────────────────

const sessionColumns = `id, agent, project_root, started_at_epoch, ended_at_epoch, status, processed,
       title, parent_session_id, parent_session_reason, source_machine_id`

func scanSession(row interface{ Scan(dest ...any) error }) (Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID, &sess.Agent, &sess.ProjectRoot, &sess.StartedAtEpoch, &sess.EndedAtEpoch,
		&sess.Status, &sess.Processed, &sess.Title, &sess.ParentSessionID,
		&sess.ParentSessionReason, &sess.SourceMachineID,
	)
	return sess, err
}

func (s *Store) querySessions(op, query string, args ...any) ([]Session, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, E(KindStorage, op, err)
	}
	defer func() { _ = rows.Close() }()

	var results []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, E(KindStorage, op, err)
		}
		results = append(results, sess)
	}
	return results, rows.Err()
}

// CreateSession registers a new agent session. The id may be supplied by
// the caller (agents usually mint their own); an empty id gets a UUID.
func (s *Store) CreateSession(p CreateSessionParams) (string, error) {
	if p.Agent == "" {
		return "", Ef(KindValidation, "create_session", "agent is required")
	}
	if p.ProjectRoot == "" {
		return "", Ef(KindValidation, "create_session", "project_root is required")
	}
	id := p.ID
	if id == "" {
		id = newID()
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, agent, project_root, started_at_epoch, status, source_machine_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, p.Agent, p.ProjectRoot, nowEpoch(), SessionActive, s.machineID,
	)
	if err != nil {
		return "", E(KindStorage, "create_session", err)
	}
	return id, nil
}

// EndSession marks a session as ended. Ending an already-ended session
// is a no-op so agent exit hooks can fire more than once.
func (s *Store) EndSession(id string) error {
	if id == "" {
		return Ef(KindValidation, "end_session", "session id is required")
	}
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at_epoch = ?, status = ?
		 WHERE id = ? AND status = ?`,
		nowEpoch(), SessionEnded, id, SessionActive,
	)
	if err != nil {
		return E(KindStorage, "end_session", err)
	}
	return nil
}

// MarkSessionProcessed records that background work for a session is
// complete. Zero-activity sessions go through here too so they never
// linger as recoverable work.
func (s *Store) MarkSessionProcessed(id string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET processed = 1, status = ? WHERE id = ?`,
		SessionProcessed, id,
	)
	if err != nil {
		return E(KindStorage, "mark_session_processed", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, E(KindStorage, "get_session", fmt.Errorf("session %s: %w", id, ErrNotFound))
		}
		return nil, E(KindStorage, "get_session", err)
	}
	return &sess, nil
}

// ListSessions returns recent sessions across all machines, newest first.
func (s *Store) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.querySessions("list_sessions",
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at_epoch DESC LIMIT ?`, limit)
}

// SetSessionTitle records a generated title for a session.
func (s *Store) SetSessionTitle(id, title string) error {
	if title == "" {
		return Ef(KindValidation, "set_session_title", "title is required")
	}
	if _, err := s.db.Exec(
		`UPDATE sessions SET title = ? WHERE id = ?`, title, id,
	); err != nil {
		return E(KindStorage, "set_session_title", err)
	}
	return nil
}

// SessionsNeedingTitles returns local processed sessions without a title.
func (s *Store) SessionsNeedingTitles(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.querySessions("sessions_needing_titles",
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE processed = 1 AND title IS NULL AND source_machine_id = ?
		 ORDER BY started_at_epoch DESC LIMIT ?`,
		s.machineID, limit)
}

// ─── Parent linking ──────────────────────────────────────────────────────────

// FindLinkableParentSession searches for a plausible parent for the given
// session using a tiered heuristic: most recent session on the same
// project within the link window, then the same agent within the window,
// then any recent session. Candidates that would create a cycle in the
// session DAG are skipped.
func (s *Store) FindLinkableParentSession(sessionID string) (*Session, string, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, "", err
	}

	cutoff := nowEpoch() - int64(s.cfg.ParentLinkWindow.Seconds())

	tiers := []struct {
		reason string
		query  string
		args   []any
	}{
		{
			reason: "same project within window",
			query: `SELECT id FROM sessions
			        WHERE id != ? AND project_root = ? AND started_at_epoch >= ?
			        ORDER BY started_at_epoch DESC LIMIT 5`,
			args: []any{sessionID, sess.ProjectRoot, cutoff},
		},
		{
			reason: "same agent within window",
			query: `SELECT id FROM sessions
			        WHERE id != ? AND agent = ? AND started_at_epoch >= ?
			        ORDER BY started_at_epoch DESC LIMIT 5`,
			args: []any{sessionID, sess.Agent, cutoff},
		},
		{
			reason: "most recent session",
			query: `SELECT id FROM sessions
			        WHERE id != ?
			        ORDER BY started_at_epoch DESC LIMIT 5`,
			args: []any{sessionID},
		},
	}

	for _, tier := range tiers {
		ids, err := s.queryIDs(tier.query, tier.args...)
		if err != nil {
			return nil, "", E(KindStorage, "find_linkable_parent", err)
		}
		for _, candidate := range ids {
			cycle, err := s.WouldCreateCycle(sessionID, candidate)
			if err != nil {
				return nil, "", err
			}
			if cycle {
				continue
			}
			parent, err := s.GetSession(candidate)
			if err != nil {
				continue
			}
			return parent, tier.reason, nil
		}
	}
	return nil, "", nil
}

// SetSessionParent links a session to a parent with a reason. The link
// is rejected when it would introduce a cycle in the session DAG.
func (s *Store) SetSessionParent(sessionID, parentID, reason string) error {
	if sessionID == parentID {
		return Ef(KindValidation, "set_session_parent", "session cannot parent itself")
	}
	if _, err := s.GetSession(parentID); err != nil {
		return err
	}
	cycle, err := s.WouldCreateCycle(sessionID, parentID)
	if err != nil {
		return err
	}
	if cycle {
		return Ef(KindValidation, "set_session_parent", "linking %s under %s would create a cycle", sessionID, parentID)
	}
	if _, err := s.db.Exec(
		`UPDATE sessions SET parent_session_id = ?, parent_session_reason = ? WHERE id = ?`,
		parentID, nullableString(reason), sessionID,
	); err != nil {
		return E(KindStorage, "set_session_parent", err)
	}
	return nil
}

// WouldCreateCycle reports whether making parentID the parent of
// sessionID would introduce a back-edge. The walk follows the candidate
// parent's ancestor chain; cost is O(depth).
func (s *Store) WouldCreateCycle(sessionID, parentID string) (bool, error) {
	seen := map[string]bool{}
	current := parentID
	for current != "" {
		if current == sessionID {
			return true, nil
		}
		if seen[current] {
			// Defends the walk against pre-existing corruption.
			return true, nil
		}
		seen[current] = true

		var next *string
		err := s.db.QueryRow(
			`SELECT parent_session_id FROM sessions WHERE id = ?`, current,
		).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, E(KindStorage, "would_create_cycle", err)
		}
		current = derefString(next)
	}
	return false, nil
}

// ─── Recovery / cleanup ──────────────────────────────────────────────────────

// StaleSessions returns local sessions still marked active whose start
// is older than the stale threshold. These were never cleanly ended
// (agent crash, kill -9) and need recovery.
func (s *Store) StaleSessions() ([]Session, error) {
	cutoff := nowEpoch() - int64(s.cfg.StaleSessionAge.Seconds())
	return s.querySessions("stale_sessions",
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE status = ? AND started_at_epoch < ? AND source_machine_id = ?
		 ORDER BY started_at_epoch`,
		SessionActive, cutoff, s.machineID)
}

// UnprocessedEndedSessions returns local sessions that ended but whose
// background work has not completed yet.
func (s *Store) UnprocessedEndedSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.querySessions("unprocessed_sessions",
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE status = ? AND processed = 0 AND source_machine_id = ?
		 ORDER BY ended_at_epoch LIMIT ?`,
		SessionEnded, s.machineID, limit)
}

// CleanupLowQualitySessions deletes ended, processed sessions that
// produced no activities and no observations. The pass is pinned to the
// local machine id so a restored teammate backup is never touched.
func (s *Store) CleanupLowQualitySessions() (int, error) {
	const eligible = `SELECT id FROM sessions
		 WHERE status = ? AND processed = 1
		   AND source_machine_id = ?
		   AND id NOT IN (SELECT DISTINCT session_id FROM activities)
		   AND id NOT IN (SELECT DISTINCT session_id FROM observations)
		   AND id NOT IN (SELECT parent_session_id FROM sessions WHERE parent_session_id IS NOT NULL)`

	tx, err := s.db.Begin()
	if err != nil {
		return 0, E(KindStorage, "cleanup_sessions", err)
	}
	defer func() { _ = tx.Rollback() }()

	// An empty session may still own empty prompt batches; drop them
	// first so the session delete passes the foreign key check.
	if _, err := tx.Exec(
		`DELETE FROM prompt_batches WHERE session_id IN (`+eligible+`)`,
		SessionProcessed, s.machineID,
	); err != nil {
		return 0, E(KindStorage, "cleanup_sessions", err)
	}
	res, err := tx.Exec(
		`DELETE FROM sessions WHERE id IN (`+eligible+`)`,
		SessionProcessed, s.machineID,
	)
	if err != nil {
		return 0, E(KindStorage, "cleanup_sessions", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, E(KindStorage, "cleanup_sessions", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ─── Small helpers ───────────────────────────────────────────────────────────

func (s *Store) queryIDs(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
