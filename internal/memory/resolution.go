package memory

import (
	"log"
	"sort"
)

// The resolution event log is the only writer of observation status once
// any event exists for an observation. Two machines that independently
// resolved or superseded the same observation converge after exchanging
// backups: each imports the other's events unapplied, then replay picks
// one winner per observation.

// ─── Recording ───────────────────────────────────────────────────────────────

// RecordResolution appends a locally generated status-transition event
// and applies it immediately. The event and the status write share one
// transaction, so the log never disagrees with the observation row.
func (s *Store) RecordResolution(observationID string, action ResolutionAction) (string, error) {
	status, ok := statusForAction(action)
	if !ok {
		return "", Ef(KindValidation, "record_resolution", "unknown action %q", action)
	}
	if _, err := s.GetObservation(observationID); err != nil {
		return "", err
	}

	ts := nowEpoch()
	hash := eventContentHash(observationID, action, ts, s.machineID)
	id := newID()

	tx, err := s.db.Begin()
	if err != nil {
		return "", E(KindStorage, "record_resolution", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Content-hash dedup: replaying the same transition in the same
	// second is a no-op on the log.
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO resolution_events (id, observation_id, action, timestamp_epoch, source_machine_id, content_hash, applied)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		id, observationID, action, ts, s.machineID, hash,
	); err != nil {
		return "", E(KindStorage, "record_resolution", err)
	}
	if _, err := tx.Exec(
		`UPDATE observations SET status = ? WHERE id = ?`,
		status, observationID,
	); err != nil {
		return "", E(KindStorage, "record_resolution", err)
	}
	if err := tx.Commit(); err != nil {
		return "", E(KindStorage, "record_resolution", err)
	}
	return hash, nil
}

// ImportResolutionEvent inserts a remotely produced event, unapplied.
// Insertion is idempotent under the content hash; the bool reports
// whether a new row was stored.
func (s *Store) ImportResolutionEvent(ev ResolutionEvent) (bool, error) {
	if ev.ObservationID == "" || ev.Action == "" || ev.SourceMachineID == "" {
		return false, Ef(KindValidation, "import_resolution_event", "observation id, action, and machine id are required")
	}
	hash := ev.ContentHash
	if hash == "" {
		hash = eventContentHash(ev.ObservationID, ev.Action, ev.TimestampEpoch, ev.SourceMachineID)
	}
	id := ev.ID
	if id == "" {
		id = newID()
	}

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO resolution_events (id, observation_id, action, timestamp_epoch, source_machine_id, content_hash, applied)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		id, ev.ObservationID, ev.Action, ev.TimestampEpoch, ev.SourceMachineID, hash,
	)
	if err != nil {
		return false, E(KindStorage, "import_resolution_event", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// BackfillResolutionEvents synthesizes one applied event per observation
// whose status was set before the event log existed, so history is
// complete without events. Returns the number of events created.
func (s *Store) BackfillResolutionEvents() (int, error) {
	rows, err := s.db.Query(
		`SELECT o.id, o.status, o.created_at_epoch, o.source_machine_id
		 FROM observations o
		 WHERE o.status != ?
		   AND NOT EXISTS (SELECT 1 FROM resolution_events e WHERE e.observation_id = o.id)`,
		ObservationActive,
	)
	if err != nil {
		return 0, E(KindStorage, "backfill_resolution_events", err)
	}
	defer func() { _ = rows.Close() }()

	type pending struct {
		observationID string
		action        ResolutionAction
		ts            int64
		machineID     string
	}
	var work []pending
	for rows.Next() {
		var id, machineID string
		var status ObservationStatus
		var ts int64
		if err := rows.Scan(&id, &status, &ts, &machineID); err != nil {
			return 0, E(KindStorage, "backfill_resolution_events", err)
		}
		var action ResolutionAction
		switch status {
		case ObservationResolved:
			action = ActionResolved
		case ObservationSuperseded:
			action = ActionSuperseded
		default:
			continue
		}
		work = append(work, pending{observationID: id, action: action, ts: ts, machineID: machineID})
	}
	if err := rows.Err(); err != nil {
		return 0, E(KindStorage, "backfill_resolution_events", err)
	}

	created := 0
	for _, w := range work {
		hash := eventContentHash(w.observationID, w.action, w.ts, w.machineID)
		res, err := s.db.Exec(
			`INSERT OR IGNORE INTO resolution_events (id, observation_id, action, timestamp_epoch, source_machine_id, content_hash, applied)
			 VALUES (?, ?, ?, ?, ?, ?, 1)`,
			newID(), w.observationID, w.action, w.ts, w.machineID, hash,
		)
		if err != nil {
			return created, E(KindStorage, "backfill_resolution_events", err)
		}
		n, _ := res.RowsAffected()
		created += int(n)
	}
	return created, nil
}

// ─── Reconciliation support ──────────────────────────────────────────────────

// CountUnappliedEvents reports how many imported events still await replay.
func (s *Store) CountUnappliedEvents() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM resolution_events WHERE applied = 0`).Scan(&n); err != nil {
		return 0, E(KindStorage, "count_unapplied_events", err)
	}
	return n, nil
}

// AllResolutionEventHashes returns every stored content hash, for
// dedup-on-export between machines.
func (s *Store) AllResolutionEventHashes() ([]string, error) {
	hashes, err := s.queryIDs(`SELECT content_hash FROM resolution_events ORDER BY timestamp_epoch`)
	if err != nil {
		return nil, E(KindStorage, "resolution_event_hashes", err)
	}
	return hashes, nil
}

// ─── Replay ──────────────────────────────────────────────────────────────────

// ReplayUnappliedEvents reconciles observation status from the event log.
// For each observation with unapplied events it considers the full event
// history and applies last-writer-wins: the greatest timestamp decides,
// with identical timestamps broken by lexically greater machine id and
// then lexically greater action, so replay is deterministic regardless
// of insertion order. Each observation commits in its own transaction;
// an interrupted replay resumes where it stopped. Corrupt events are
// skipped and logged, never abort the batch.
func (s *Store) ReplayUnappliedEvents() (*ReplayResult, error) {
	ids, err := s.queryIDs(
		`SELECT DISTINCT observation_id FROM resolution_events WHERE applied = 0 ORDER BY observation_id`,
	)
	if err != nil {
		return nil, E(KindStorage, "replay_unapplied", err)
	}

	result := &ReplayResult{}
	for _, obsID := range ids {
		applied, skipped, err := s.replayObservation(obsID)
		if err != nil {
			return result, err
		}
		result.Applied += applied
		result.Skipped += skipped
	}
	return result, nil
}

func (s *Store) replayObservation(observationID string) (applied, skipped int, err error) {
	rows, err := s.db.Query(
		`SELECT id, action, timestamp_epoch, source_machine_id, applied
		 FROM resolution_events WHERE observation_id = ?`,
		observationID,
	)
	if err != nil {
		return 0, 0, E(KindStorage, "replay_observation", err)
	}

	type event struct {
		id        string
		action    ResolutionAction
		ts        int64
		machineID string
		applied   bool
	}
	var events []event
	for rows.Next() {
		var ev event
		if err := rows.Scan(&ev.id, &ev.action, &ev.ts, &ev.machineID, &ev.applied); err != nil {
			_ = rows.Close()
			return 0, 0, E(KindStorage, "replay_observation", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, 0, E(KindStorage, "replay_observation", err)
	}
	_ = rows.Close()

	// Last-writer-wins ordering: timestamp, then machine id, then action.
	sort.Slice(events, func(i, j int) bool {
		if events[i].ts != events[j].ts {
			return events[i].ts > events[j].ts
		}
		if events[i].machineID != events[j].machineID {
			return events[i].machineID > events[j].machineID
		}
		return events[i].action > events[j].action
	})

	var winner *ObservationStatus
	pendingApplied := 0
	for _, ev := range events {
		status, ok := statusForAction(ev.action)
		if !ok {
			log.Printf("WARNING: memory: skipping corrupt resolution event %s (action %q)", ev.id, ev.action)
			if !ev.applied {
				skipped++
			}
			continue
		}
		if winner == nil {
			winner = &status
		}
		if !ev.applied {
			pendingApplied++
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, skipped, E(KindStorage, "replay_observation", err)
	}
	defer func() { _ = tx.Rollback() }()

	if winner != nil {
		if _, err := tx.Exec(
			`UPDATE observations SET status = ? WHERE id = ?`, *winner, observationID,
		); err != nil {
			return 0, skipped, E(KindStorage, "replay_observation", err)
		}
	}
	// Marking applied and writing the status commit together: a crash
	// between them would otherwise strand the log and the row out of sync.
	if _, err := tx.Exec(
		`UPDATE resolution_events SET applied = 1 WHERE observation_id = ? AND applied = 0`,
		observationID,
	); err != nil {
		return 0, skipped, E(KindStorage, "replay_observation", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, skipped, E(KindStorage, "replay_observation", err)
	}
	return pendingApplied, skipped, nil
}
