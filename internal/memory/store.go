// Package memory implements the persistent activity store for Recall.
//
// It uses SQLite with FTS5 full-text search to record sessions, prompt
// batches, tool activities, and distilled observations from AI coding
// sessions, plus an append-only resolution-event log that reconciles
// observation status across machines after backup exchange.
package memory

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// nowFunc is a package-level var to allow tests to pin the clock.
var nowFunc = time.Now

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds activity store configuration.
type Config struct {
	DataDir          string
	MachineID        string // persisted and auto-generated when empty
	MaxSearchResults int
	ParentLinkWindow time.Duration // recency window for parent session linking
	StaleSessionAge  time.Duration // sessions active longer than this are stale
	StuckBatchAge    time.Duration // batches open longer than this are stuck
}

// DefaultConfig returns the default configuration for the store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".recall"),
		MaxSearchResults: 50,
		ParentLinkWindow: 6 * time.Hour,
		StaleSessionAge:  12 * time.Hour,
		StuckBatchAge:    30 * time.Minute,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the durable record of sessions, batches, activities, and
// observations, backed by SQLite + FTS5. All background mutation paths
// are pinned to the store's machine id; reads are unrestricted.
type Store struct {
	db        *sql.DB
	cfg       Config
	machineID string
}

// New creates a Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode, resolves the machine
// identity, and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = DefaultConfig().MaxSearchResults
	}
	if cfg.ParentLinkWindow == 0 {
		cfg.ParentLinkWindow = DefaultConfig().ParentLinkWindow
	}
	if cfg.StaleSessionAge == 0 {
		cfg.StaleSessionAge = DefaultConfig().StaleSessionAge
	}
	if cfg.StuckBatchAge == 0 {
		cfg.StuckBatchAge = DefaultConfig().StuckBatchAge
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "recall.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	machineID, err := resolveMachineID(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, cfg: cfg, machineID: machineID}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("memory: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// MachineID returns the identity this store writes into every owned row.
func (s *Store) MachineID() string {
	return s.machineID
}

// resolveMachineID returns the configured machine id, or loads/creates
// a persistent one under the data directory so the identity survives
// restarts.
func resolveMachineID(cfg Config) (string, error) {
	if cfg.MachineID != "" {
		return cfg.MachineID, nil
	}
	path := filepath.Join(cfg.DataDir, "machine-id")
	if b, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("memory: persist machine id: %w", err)
	}
	return id, nil
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id                    TEXT PRIMARY KEY,
			agent                 TEXT    NOT NULL,
			project_root          TEXT    NOT NULL,
			started_at_epoch      INTEGER NOT NULL,
			ended_at_epoch        INTEGER,
			status                TEXT    NOT NULL DEFAULT 'active',
			processed             INTEGER NOT NULL DEFAULT 0,
			title                 TEXT,
			parent_session_id     TEXT,
			parent_session_reason TEXT,
			source_machine_id     TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_root, started_at_epoch DESC);
		CREATE INDEX IF NOT EXISTS idx_sessions_agent   ON sessions(agent, started_at_epoch DESC);
		CREATE INDEX IF NOT EXISTS idx_sessions_status  ON sessions(status, processed);
		CREATE INDEX IF NOT EXISTS idx_sessions_machine ON sessions(source_machine_id);

		CREATE TABLE IF NOT EXISTS prompt_batches (
			id               TEXT PRIMARY KEY,
			session_id       TEXT    NOT NULL,
			started_at_epoch INTEGER NOT NULL,
			ended_at_epoch   INTEGER,
			response_summary TEXT,
			processed        INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_batches_session ON prompt_batches(session_id, started_at_epoch);
		CREATE INDEX IF NOT EXISTS idx_batches_pending ON prompt_batches(processed, ended_at_epoch);

		CREATE TABLE IF NOT EXISTS activities (
			id                TEXT PRIMARY KEY,
			prompt_batch_id   TEXT,
			session_id        TEXT    NOT NULL,
			tool_name         TEXT    NOT NULL,
			file_path         TEXT,
			output_summary    TEXT,
			success           INTEGER NOT NULL DEFAULT 1,
			error_message     TEXT,
			created_at_epoch  INTEGER NOT NULL,
			source_machine_id TEXT    NOT NULL,
			FOREIGN KEY (session_id)      REFERENCES sessions(id),
			FOREIGN KEY (prompt_batch_id) REFERENCES prompt_batches(id)
		);

		CREATE INDEX IF NOT EXISTS idx_activities_session ON activities(session_id, created_at_epoch);
		CREATE INDEX IF NOT EXISTS idx_activities_batch   ON activities(prompt_batch_id);
		CREATE INDEX IF NOT EXISTS idx_activities_machine ON activities(source_machine_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS activities_fts USING fts5(
			output_summary,
			tool_name,
			file_path,
			content='activities',
			content_rowid='rowid'
		);

		CREATE TABLE IF NOT EXISTS observations (
			id                TEXT PRIMARY KEY,
			session_id        TEXT    NOT NULL,
			observation       TEXT    NOT NULL,
			memory_type       TEXT    NOT NULL,
			context           TEXT,
			importance        INTEGER NOT NULL DEFAULT 3,
			status            TEXT    NOT NULL DEFAULT 'active',
			created_at_epoch  INTEGER NOT NULL,
			source_machine_id TEXT    NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_obs_session ON observations(session_id);
		CREATE INDEX IF NOT EXISTS idx_obs_type    ON observations(memory_type);
		CREATE INDEX IF NOT EXISTS idx_obs_status  ON observations(status);
		CREATE INDEX IF NOT EXISTS idx_obs_created ON observations(created_at_epoch DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS observations_fts USING fts5(
			observation,
			context,
			memory_type,
			content='observations',
			content_rowid='rowid'
		);

		CREATE TABLE IF NOT EXISTS resolution_events (
			id                TEXT PRIMARY KEY,
			observation_id    TEXT    NOT NULL,
			action            TEXT    NOT NULL,
			timestamp_epoch   INTEGER NOT NULL,
			source_machine_id TEXT    NOT NULL,
			content_hash      TEXT    NOT NULL UNIQUE,
			applied           INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_events_observation ON resolution_events(observation_id, timestamp_epoch);
		CREATE INDEX IF NOT EXISTS idx_events_unapplied   ON resolution_events(applied);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS triggers (idempotent: only created when missing)
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='act_fts_insert'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER act_fts_insert AFTER INSERT ON activities BEGIN
				INSERT INTO activities_fts(rowid, output_summary, tool_name, file_path)
				VALUES (new.rowid, new.output_summary, new.tool_name, new.file_path);
			END;

			CREATE TRIGGER act_fts_delete AFTER DELETE ON activities BEGIN
				INSERT INTO activities_fts(activities_fts, rowid, output_summary, tool_name, file_path)
				VALUES ('delete', old.rowid, old.output_summary, old.tool_name, old.file_path);
			END;

			CREATE TRIGGER obs_fts_insert AFTER INSERT ON observations BEGIN
				INSERT INTO observations_fts(rowid, observation, context, memory_type)
				VALUES (new.rowid, new.observation, new.context, new.memory_type);
			END;

			CREATE TRIGGER obs_fts_delete AFTER DELETE ON observations BEGIN
				INSERT INTO observations_fts(observations_fts, rowid, observation, context, memory_type)
				VALUES ('delete', old.rowid, old.observation, old.context, old.memory_type);
			END;

			CREATE TRIGGER obs_fts_update AFTER UPDATE ON observations BEGIN
				INSERT INTO observations_fts(observations_fts, rowid, observation, context, memory_type)
				VALUES ('delete', old.rowid, old.observation, old.context, old.memory_type);
				INSERT INTO observations_fts(rowid, observation, context, memory_type)
				VALUES (new.rowid, new.observation, new.context, new.memory_type);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	}

	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nowEpoch() int64 {
	return nowFunc().UTC().Unix()
}

func newID() string {
	return uuid.NewString()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// eventContentHash computes the idempotency hash for a resolution event.
func eventContentHash(observationID string, action ResolutionAction, timestampEpoch int64, machineID string) string {
	payload := fmt.Sprintf("%s|%s|%d|%s", observationID, action, timestampEpoch, machineID)
	h := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(h[:])
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "fix auth bug" → `"fix" "auth" "bug"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.Trim(w, `"`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}

// Truncate shortens a string to max length with ellipsis.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
