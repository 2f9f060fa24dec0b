// Package resources implements MCP resource handlers for the memory engine.
//
// Resources provide read-only data the host can pull for context. They
// use URI-based addressing (recall://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// recentLimit caps how many rows the listing resources return.
const recentLimit = 20

// Handler serves read-only views of the activity store.
type Handler struct {
	store *memory.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(store *memory.Store) *Handler {
	return &Handler{store: store}
}

// StatsResource returns the MCP resource definition for engine statistics.
func (h *Handler) StatsResource() mcp.Resource {
	return mcp.NewResource(
		"recall://engine/stats",
		"Memory Engine Stats",
		mcp.WithResourceDescription("Store counts, pending work, and unapplied resolution events"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStats returns aggregate store statistics as JSON.
func (h *Handler) HandleStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := h.store.Stats()
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	payload := struct {
		MachineID string `json:"machine_id"`
		*memory.Stats
	}{h.store.MachineID(), stats}

	return jsonResource(req.Params.URI, payload)
}

// SessionsResource returns the MCP resource definition for recent sessions.
func (h *Handler) SessionsResource() mcp.Resource {
	return mcp.NewResource(
		"recall://sessions/recent",
		"Recent Sessions",
		mcp.WithResourceDescription("The most recent coding sessions with titles and lineage"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSessions returns the most recently started sessions as JSON.
func (h *Handler) HandleSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessions, err := h.store.ListSessions(recentLimit)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, sessions)
}

// ObservationsResource returns the MCP resource definition for recent
// observations.
func (h *Handler) ObservationsResource() mcp.Resource {
	return mcp.NewResource(
		"recall://observations/recent",
		"Recent Observations",
		mcp.WithResourceDescription("The most recently distilled observations, newest first"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleObservations returns the newest observations as JSON.
func (h *Handler) HandleObservations(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	obs, err := h.store.RecentObservations(recentLimit)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, obs)
}

// jsonResource marshals v and wraps it in a single JSON resource.
func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource carrying an error message. Read
// failures surface as content rather than protocol errors so hosts can
// show them.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
