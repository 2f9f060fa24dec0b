// Package summarize defines the contract for distilling prompt-batch
// activity into durable observations, the prompt templates and token
// budgeting behind it, and an Anthropic-backed implementation.
package summarize

import "context"

// Request carries everything a backend needs to distill one prompt batch.
type Request struct {
	UserPrompt      string   `json:"user_prompt"`
	FilesCreated    []string `json:"files_created"`
	FilesModified   []string `json:"files_modified"`
	FilesRead       []string `json:"files_read"`
	CommandsRun     []string `json:"commands_run"`
	DurationMinutes float64  `json:"duration_minutes"`
	ActivityLines   []string `json:"activity_lines"`
	PriorContext    string   `json:"prior_context,omitempty"`
}

// Observation is one distilled memory item returned by a backend.
type Observation struct {
	Text       string `json:"observation"`
	MemoryType string `json:"memory_type"`
	Context    string `json:"context,omitempty"`
	Importance int    `json:"importance"`
}

// Response is a backend's distillation of one request.
type Response struct {
	Observations   []Observation `json:"observations"`
	SessionSummary string        `json:"session_summary,omitempty"`
}

// Summarizer is the summarization backend contract. The engine only
// defines calling conventions; the model lives elsewhere.
type Summarizer interface {
	// ContextWindow is the backend's input window in tokens, used to
	// compute the per-section budget for each request.
	ContextWindow() int
	// Summarize distills a request into observations. Long calls must
	// honor ctx cancellation so the scheduler is never starved.
	Summarize(ctx context.Context, req Request) (*Response, error)
}
