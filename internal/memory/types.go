package memory

// ─── Sessions ────────────────────────────────────────────────────────────────

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
	SessionProcessed SessionStatus = "processed"
)

// Session represents one continuous agent run. Sessions form a DAG via
// ParentSessionID; cycles are rejected at link time.
type Session struct {
	ID                  string        `json:"id"`
	Agent               string        `json:"agent"`
	ProjectRoot         string        `json:"project_root"`
	StartedAtEpoch      int64         `json:"started_at_epoch"`
	EndedAtEpoch        *int64        `json:"ended_at_epoch,omitempty"`
	Status              SessionStatus `json:"status"`
	Processed           bool          `json:"processed"`
	Title               *string       `json:"title,omitempty"`
	ParentSessionID     *string       `json:"parent_session_id,omitempty"`
	ParentSessionReason *string       `json:"parent_session_reason,omitempty"`
	SourceMachineID     string        `json:"source_machine_id"`
}

// CreateSessionParams holds input for registering a new session.
type CreateSessionParams struct {
	ID          string `json:"id"`
	Agent       string `json:"agent"`
	ProjectRoot string `json:"project_root"`
}

// ─── Prompt batches ──────────────────────────────────────────────────────────

// PromptBatch groups all activities triggered by one user prompt.
// It is the unit of background summarization.
type PromptBatch struct {
	ID              string  `json:"id"`
	SessionID       string  `json:"session_id"`
	StartedAtEpoch  int64   `json:"started_at_epoch"`
	EndedAtEpoch    *int64  `json:"ended_at_epoch,omitempty"`
	ResponseSummary *string `json:"response_summary,omitempty"`
	Processed       bool    `json:"processed"`
}

// ─── Activities ──────────────────────────────────────────────────────────────

// Activity is one tool execution. Immutable once written except for
// later linkage to a prompt batch.
type Activity struct {
	ID              string  `json:"id"`
	PromptBatchID   *string `json:"prompt_batch_id,omitempty"`
	SessionID       string  `json:"session_id"`
	ToolName        string  `json:"tool_name"`
	FilePath        string  `json:"file_path,omitempty"`
	OutputSummary   string  `json:"output_summary,omitempty"`
	Success         bool    `json:"success"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CreatedAtEpoch  int64   `json:"created_at_epoch"`
	SourceMachineID string  `json:"source_machine_id"`
}

// AddActivityParams holds input for recording a tool execution.
type AddActivityParams struct {
	SessionID     string `json:"session_id"`
	PromptBatchID string `json:"prompt_batch_id,omitempty"`
	ToolName      string `json:"tool_name"`
	FilePath      string `json:"file_path,omitempty"`
	OutputSummary string `json:"output_summary,omitempty"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// ─── Observations ────────────────────────────────────────────────────────────

// MemoryType is the closed classification of a stored observation.
type MemoryType string

const (
	MemoryGotcha    MemoryType = "gotcha"
	MemoryBugFix    MemoryType = "bug_fix"
	MemoryDecision  MemoryType = "decision"
	MemoryDiscovery MemoryType = "discovery"
	MemoryTradeOff  MemoryType = "trade_off"
)

// NormalizeMemoryType maps arbitrary input onto the closed enum,
// defaulting to discovery for anything unrecognized.
func NormalizeMemoryType(v string) MemoryType {
	switch MemoryType(v) {
	case MemoryGotcha, MemoryBugFix, MemoryDecision, MemoryDiscovery, MemoryTradeOff:
		return MemoryType(v)
	}
	return MemoryDiscovery
}

// ObservationStatus is the resolution state of a stored observation.
type ObservationStatus string

const (
	ObservationActive     ObservationStatus = "active"
	ObservationResolved   ObservationStatus = "resolved"
	ObservationSuperseded ObservationStatus = "superseded"
)

// StoredObservation is a durable memory item produced by summarization
// or an explicit remember call.
type StoredObservation struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"session_id"`
	Observation     string            `json:"observation"`
	MemoryType      MemoryType        `json:"memory_type"`
	Context         string            `json:"context,omitempty"`
	Importance      int               `json:"importance"`
	Status          ObservationStatus `json:"status"`
	CreatedAtEpoch  int64             `json:"created_at_epoch"`
	SourceMachineID string            `json:"source_machine_id"`
}

// StoreObservationParams holds input for persisting a new observation.
type StoreObservationParams struct {
	SessionID   string `json:"session_id"`
	Observation string `json:"observation"`
	MemoryType  string `json:"memory_type,omitempty"`
	Context     string `json:"context,omitempty"`
	Importance  int    `json:"importance,omitempty"`
}

// ─── Resolution events ───────────────────────────────────────────────────────

// ResolutionAction is a status transition recorded in the event log.
type ResolutionAction string

const (
	ActionResolved    ResolutionAction = "resolved"
	ActionSuperseded  ResolutionAction = "superseded"
	ActionReactivated ResolutionAction = "reactivated"
)

// statusForAction maps an event action to the observation status it produces.
func statusForAction(a ResolutionAction) (ObservationStatus, bool) {
	switch a {
	case ActionResolved:
		return ObservationResolved, true
	case ActionSuperseded:
		return ObservationSuperseded, true
	case ActionReactivated:
		return ObservationActive, true
	}
	return "", false
}

// ResolutionEvent is an immutable fact: observation X transitioned via
// action A at time T on machine M. The content hash makes re-import
// idempotent.
type ResolutionEvent struct {
	ID              string           `json:"id"`
	ObservationID   string           `json:"observation_id"`
	Action          ResolutionAction `json:"action"`
	TimestampEpoch  int64            `json:"timestamp_epoch"`
	SourceMachineID string           `json:"source_machine_id"`
	ContentHash     string           `json:"content_hash"`
	Applied         bool             `json:"applied"`
}

// ReplayResult holds counts from one replay pass over unapplied events.
type ReplayResult struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// ─── Search / stats ──────────────────────────────────────────────────────────

// SearchOptions holds filters for FTS5 search queries.
type SearchOptions struct {
	MemoryType string `json:"memory_type,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// ObservationSearchResult embeds a StoredObservation with its FTS5 rank.
type ObservationSearchResult struct {
	StoredObservation
	Rank float64 `json:"rank"`
}

// ActivitySearchResult embeds an Activity with its FTS5 rank.
type ActivitySearchResult struct {
	Activity
	Rank float64 `json:"rank"`
}

// Stats holds aggregate store statistics.
type Stats struct {
	TotalSessions     int `json:"total_sessions"`
	TotalBatches      int `json:"total_batches"`
	TotalActivities   int `json:"total_activities"`
	TotalObservations int `json:"total_observations"`
	PendingBatches    int `json:"pending_batches"`
	UnappliedEvents   int `json:"unapplied_events"`
}

// ─── Export / import ─────────────────────────────────────────────────────────

// ExportData is the full serializable dump of the store, the backup
// stream exchanged between machines.
type ExportData struct {
	Version          string              `json:"version"`
	ExportedAtEpoch  int64               `json:"exported_at_epoch"`
	MachineID        string              `json:"machine_id"`
	Sessions         []Session           `json:"sessions"`
	PromptBatches    []PromptBatch       `json:"prompt_batches"`
	Activities       []Activity          `json:"activities"`
	Observations     []StoredObservation `json:"observations"`
	ResolutionEvents []ResolutionEvent   `json:"resolution_events"`
}

// ImportResult holds counts of newly imported records.
type ImportResult struct {
	SessionsImported     int `json:"sessions_imported"`
	BatchesImported      int `json:"batches_imported"`
	ActivitiesImported   int `json:"activities_imported"`
	ObservationsImported int `json:"observations_imported"`
	EventsImported       int `json:"events_imported"`
}
