// Package server wires all components and creates the MCP server.
//
// This is the composition root: it creates concrete implementations
// and injects them into the tools that depend on them. No business
// logic lives here — only wiring.
package server

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/HendryAvila/recall/internal/config"
	"github.com/HendryAvila/recall/internal/daemon"
	"github.com/HendryAvila/recall/internal/embed"
	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/memtools"
	"github.com/HendryAvila/recall/internal/prompts"
	"github.com/HendryAvila/recall/internal/resources"
	"github.com/HendryAvila/recall/internal/retrieval"
	"github.com/HendryAvila/recall/internal/summarize"
	"github.com/HendryAvila/recall/internal/vector"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Engine bundles every wired component so callers (the MCP server, the
// CLI one-shot commands) share one assembly path and no package-level
// state exists.
type Engine struct {
	Config    *config.Config
	Store     *memory.Store
	Chain     *embed.Chain
	Index     *vector.Index
	Retrieval *retrieval.Engine
	Tracker   *daemon.ActivityTracker
	Processor *daemon.Processor
	Scheduler *daemon.Scheduler
}

// NewEngine assembles the full engine from configuration.
// Summarization is optional: without an API key the background cycle
// still recovers state and maintains the index, it just distills nothing.
func NewEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	store, err := memory.New(memory.Config{
		DataDir:          cfg.DataDir,
		MachineID:        cfg.MachineID,
		MaxSearchResults: cfg.Store.MaxSearchResults,
		ParentLinkWindow: cfg.Store.ParentLinkWindow.Std(),
		StaleSessionAge:  cfg.Store.StaleSessionAge.Std(),
		StuckBatchAge:    cfg.Store.StuckBatchAge.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("server: open store: %w", err)
	}

	chain := embed.NewChain(embed.NewLocal(cfg.Vector.Dimensions))

	index, err := vector.New(chain, vector.Config{
		PersistDir:     filepath.Join(cfg.DataDir, "vectors"),
		EFConstruction: cfg.Vector.EFConstruction,
		MaxNeighbors:   cfg.Vector.MaxNeighbors,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("server: open vector index: %w", err)
	}

	engine, err := retrieval.New(index, retrieval.Config{
		MaxResults:      cfg.Retrieval.MaxResults,
		QueryCacheSize:  cfg.Retrieval.QueryCacheSize,
		RecencyHalfLife: cfg.Retrieval.RecencyHalfLife.Std().Hours() / 24,
	}, nil)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("server: retrieval engine: %w", err)
	}

	var summarizer summarize.Summarizer
	if cfg.Summarizer.APIKey != "" {
		s, err := summarize.NewAnthropic(summarize.AnthropicConfig{
			APIKey:        cfg.Summarizer.APIKey,
			Model:         cfg.Summarizer.Model,
			ContextWindow: cfg.Summarizer.ContextWindow,
			MaxTokens:     int64(cfg.Summarizer.MaxTokens),
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("server: summarizer: %w", err)
		}
		summarizer = s
	} else {
		log.Printf("WARNING: no API key configured, batch summarization disabled")
	}

	processor := daemon.NewProcessor(ctx, store, summarizer, index, daemon.ProcessorConfig{
		BatchLimit:   cfg.Daemon.BatchLimit,
		SessionLimit: cfg.Daemon.SessionLimit,
		Workers:      cfg.Daemon.Workers,
		QueueSize:    cfg.Daemon.QueueSize,
	})

	tracker := daemon.NewActivityTracker()
	scheduler := daemon.NewScheduler(processor, tracker, daemon.PowerConfig{
		IdleThreshold:      cfg.Daemon.IdleThreshold.Std(),
		SleepThreshold:     cfg.Daemon.SleepThreshold.Std(),
		DeepSleepThreshold: cfg.Daemon.DeepSleepThreshold.Std(),
		ActiveInterval:     cfg.Daemon.ActiveInterval.Std(),
		SleepInterval:      cfg.Daemon.SleepInterval.Std(),
	})

	return &Engine{
		Config:    cfg,
		Store:     store,
		Chain:     chain,
		Index:     index,
		Retrieval: engine,
		Tracker:   tracker,
		Processor: processor,
		Scheduler: scheduler,
	}, nil
}

// Close stops the scheduler, drains the worker pool, and closes the store.
func (e *Engine) Close() {
	e.Scheduler.Stop()
	e.Processor.Close()
	if err := e.Store.Close(); err != nil {
		log.Printf("WARNING: store close: %v", err)
	}
}

// New creates the MCP server with all tools registered and the
// background scheduler started. The returned cleanup function must be
// called on shutdown (typically via defer).
func New(ctx context.Context, cfg *config.Config) (*server.MCPServer, func(), error) {
	engine, err := NewEngine(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}

	s := server.NewMCPServer(
		"recall",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// Every hook write marks the device active so the scheduler keeps
	// its short interval (and wakes from deep sleep).
	notify := memtools.ActivityFunc(func() {
		engine.Tracker.Touch()
		engine.Scheduler.Notify()
	})

	registerTools(s, engine, notify)
	registerPrompts(s)
	registerResources(s, engine)

	engine.Scheduler.Start(ctx)

	return s, engine.Close, nil
}

func registerTools(s *server.MCPServer, engine *Engine, notify memtools.ActivityFunc) {
	// --- Hook write path (fire-and-forget) ---
	sessionStart := memtools.NewSessionStartTool(engine.Store, notify)
	s.AddTool(sessionStart.Definition(), sessionStart.Handle)

	sessionEnd := memtools.NewSessionEndTool(engine.Store, notify)
	s.AddTool(sessionEnd.Definition(), sessionEnd.Handle)

	promptStart := memtools.NewPromptStartTool(engine.Store, notify)
	s.AddTool(promptStart.Definition(), promptStart.Handle)

	promptEnd := memtools.NewPromptEndTool(engine.Store, notify)
	s.AddTool(promptEnd.Definition(), promptEnd.Handle)

	record := memtools.NewRecordTool(engine.Store, notify)
	s.AddTool(record.Definition(), record.Handle)

	// --- Query & retrieval ---
	search := memtools.NewSearchTool(engine.Store)
	s.AddTool(search.Definition(), search.Handle)

	memContext := memtools.NewContextTool(engine.Retrieval)
	s.AddTool(memContext.Definition(), memContext.Handle)

	// --- Explicit memory ---
	remember := memtools.NewRememberTool(engine.Store, engine.Index)
	s.AddTool(remember.Definition(), remember.Handle)

	indexCode := memtools.NewIndexCodeTool(engine.Index)
	s.AddTool(indexCode.Definition(), indexCode.Handle)

	resolve := memtools.NewResolveTool(engine.Store)
	s.AddTool(resolve.Definition(), resolve.Handle)

	// --- Maintenance ---
	stats := memtools.NewStatsTool(engine.Store, engine.Chain, engine.Index)
	s.AddTool(stats.Definition(), stats.Handle)

	replay := memtools.NewReplayTool(engine.Store)
	s.AddTool(replay.Definition(), replay.Handle)

	reindex := memtools.NewReindexTool(engine.Store, engine.Index)
	s.AddTool(reindex.Definition(), reindex.Handle)

	export := memtools.NewExportTool(engine.Store)
	s.AddTool(export.Definition(), export.Handle)

	importTool := memtools.NewImportTool(engine.Store)
	s.AddTool(importTool.Definition(), importTool.Handle)
}

// registerPrompts adds the user-triggered workflows (slash commands).
func registerPrompts(s *server.MCPServer) {
	review := prompts.NewReviewPrompt()
	s.AddPrompt(review.Definition(), review.Handle)

	handoff := prompts.NewHandoffPrompt()
	s.AddPrompt(handoff.Definition(), handoff.Handle)
}

// registerResources adds the read-only recall:// views of the store.
func registerResources(s *server.MCPServer, engine *Engine) {
	h := resources.NewHandler(engine.Store)
	s.AddResource(h.StatsResource(), h.HandleStats)
	s.AddResource(h.SessionsResource(), h.HandleSessions)
	s.AddResource(h.ObservationsResource(), h.HandleObservations)
}

// serverInstructions returns the system instructions that tell the AI
// how to use Recall effectively.
func serverInstructions() string {
	return `You have access to Recall, a persistent memory engine for coding sessions.

## SESSION LIFECYCLE

At the start of a session call mem_session_start with your agent name and
the project root; keep the returned session id. Before each piece of user
work call mem_prompt_start; after responding call mem_prompt_end. Record
every tool execution with mem_record. These calls never fail from your
side — fire them and move on.

At the end of a session call mem_session_end. Unfinished work is
recovered automatically, but a clean end makes summaries better.

## USING MEMORY

- Before starting a task, call mem_context with a description of the task
  and the files in focus. Inject the returned block into your working
  context.
- Use mem_search to look up specific past decisions, gotchas, and fixes.
- When you learn something durable (a gotcha, a trade-off, a decision
  with rationale), store it explicitly with mem_remember.
- When a remembered problem gets fixed or becomes obsolete, call
  mem_resolve so stale knowledge stops surfacing.
- Push files you work on through mem_index_code (split the text into
  chunks of a few hundred tokens) so code search and mem_context can
  surface them later.

## SYNCING MACHINES

mem_export writes a backup; mem_import loads one from another machine and
reconciles observation statuses automatically. Both are idempotent.`
}
