package daemon

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/summarize"
	"github.com/HendryAvila/recall/internal/vector"
)

// ProcessorConfig tunes the background cycle.
type ProcessorConfig struct {
	BatchLimit   int // pending batches picked up per cycle
	SessionLimit int // completed sessions handled per cycle
	Workers      int // summarization pool size
	QueueSize    int // summarization pool queue
}

// DefaultProcessorConfig returns the default cycle tuning.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{BatchLimit: 10, SessionLimit: 20, Workers: 2, QueueSize: 8}
}

// Processor executes the background cycle: recovery, summarization,
// session cleanup, and vector index maintenance. Phases run in a fixed
// order; a failing phase is logged and the cycle moves on.
type Processor struct {
	store      *memory.Store
	summarizer summarize.Summarizer
	index      *vector.Index
	pool       *Pool
	cfg        ProcessorConfig

	mu       sync.Mutex
	inflight map[string]bool // batch ids dispatched and not yet finished
	indexed  map[string]bool // observation ids already in the vector index
}

// NewProcessor wires a processor over the store, summarizer, and index.
// The summarizer and index may be nil; the matching phases degrade to
// store-only behavior.
func NewProcessor(ctx context.Context, store *memory.Store, summarizer summarize.Summarizer, index *vector.Index, cfg ProcessorConfig) *Processor {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultProcessorConfig().BatchLimit
	}
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = DefaultProcessorConfig().SessionLimit
	}
	return &Processor{
		store:      store,
		summarizer: summarizer,
		index:      index,
		pool:       NewPool(ctx, cfg.Workers, cfg.QueueSize),
		cfg:        cfg,
		inflight:   map[string]bool{},
		indexed:    map[string]bool{},
	}
}

// Close drains the summarization pool.
func (p *Processor) Close() {
	p.pool.Close()
}

// RunCycle executes the five cycle phases in order. Each phase is
// isolated: a panic or error in one is logged and the next still runs.
func (p *Processor) RunCycle(ctx context.Context) {
	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"recover_stuck_batches", p.recoverStuckBatches},
		{"recover_stale_sessions", p.recoverStaleSessions},
		{"finish_sessions", p.finishSessions},
		{"process_pending_batches", p.processPendingBatches},
		{"maintain_index", p.maintainIndex},
	}
	for _, phase := range phases {
		if ctx.Err() != nil {
			return
		}
		p.runPhase(ctx, phase.name, phase.fn)
	}
}

func (p *Processor) runPhase(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARNING: daemon: phase %s panicked: %v", name, r)
		}
	}()
	if err := fn(ctx); err != nil {
		log.Printf("WARNING: daemon: phase %s: %v", name, err)
	}
}

// ─── Phase 1: stuck batches ──────────────────────────────────────────────────

// recoverStuckBatches closes batches that were opened but never ended.
// Closing them turns orphaned in-flight work into pending work that
// phase 4 picks up on this or a later cycle.
func (p *Processor) recoverStuckBatches(context.Context) error {
	stuck, err := p.store.StuckBatches()
	if err != nil {
		return err
	}
	for _, b := range stuck {
		if err := p.store.EndPromptBatch(b.ID, ""); err != nil {
			log.Printf("WARNING: daemon: recover batch %s: %v", b.ID, err)
			continue
		}
		log.Printf("daemon: recovered stuck batch %s (session %s)", b.ID, b.SessionID)
	}
	return nil
}

// ─── Phase 2: stale sessions ─────────────────────────────────────────────────

// recoverStaleSessions ends sessions whose agent died without an end
// hook. Ended sessions flow through the same finishing path as cleanly
// ended ones, so the zero-activity rule applies identically.
func (p *Processor) recoverStaleSessions(context.Context) error {
	stale, err := p.store.StaleSessions()
	if err != nil {
		return err
	}
	for _, sess := range stale {
		if err := p.store.EndSession(sess.ID); err != nil {
			log.Printf("WARNING: daemon: recover session %s: %v", sess.ID, err)
			continue
		}
		log.Printf("daemon: recovered stale session %s (agent %s)", sess.ID, sess.Agent)
	}
	return nil
}

// ─── Phase 3: finish sessions ────────────────────────────────────────────────

// finishSessions marks ended sessions processed once every batch of
// theirs is processed, then deletes processed sessions that produced
// nothing. Zero-activity sessions are finished immediately without any
// summarizer involvement.
func (p *Processor) finishSessions(context.Context) error {
	sessions, err := p.store.UnprocessedEndedSessions(p.cfg.SessionLimit)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		count, err := p.store.ActivityCountForSession(sess.ID)
		if err != nil {
			log.Printf("WARNING: daemon: finish session %s: %v", sess.ID, err)
			continue
		}
		if count == 0 {
			if err := p.store.MarkSessionProcessed(sess.ID); err != nil {
				log.Printf("WARNING: daemon: finish empty session %s: %v", sess.ID, err)
			}
			continue
		}

		batches, err := p.store.BatchesForSession(sess.ID)
		if err != nil {
			log.Printf("WARNING: daemon: finish session %s: %v", sess.ID, err)
			continue
		}
		done := true
		for _, b := range batches {
			if !b.Processed {
				done = false
				break
			}
		}
		if !done {
			continue
		}
		if err := p.store.MarkSessionProcessed(sess.ID); err != nil {
			log.Printf("WARNING: daemon: finish session %s: %v", sess.ID, err)
		}
	}

	if n, err := p.store.CleanupLowQualitySessions(); err != nil {
		log.Printf("WARNING: daemon: cleanup sessions: %v", err)
	} else if n > 0 {
		log.Printf("daemon: cleaned up %d empty sessions", n)
	}
	return nil
}

// ─── Phase 4: pending batches ────────────────────────────────────────────────

// processPendingBatches dispatches ended, unprocessed batches to the
// summarization pool. Batches with no activities are marked processed
// right here with no summarizer call. A batch already in flight from a
// previous cycle is skipped until its task finishes.
func (p *Processor) processPendingBatches(context.Context) error {
	pending, err := p.store.PendingBatches(p.cfg.BatchLimit)
	if err != nil {
		return err
	}
	for _, b := range pending {
		batch := b
		if !p.claim(batch.ID) {
			continue
		}

		activities, err := p.store.ActivitiesForBatch(batch.ID)
		if err != nil {
			p.release(batch.ID)
			log.Printf("WARNING: daemon: load batch %s: %v", batch.ID, err)
			continue
		}
		if len(activities) == 0 {
			// Zombie batch: nothing happened, nothing to distill.
			if err := p.store.MarkBatchProcessed(batch.ID); err != nil {
				log.Printf("WARNING: daemon: mark empty batch %s: %v", batch.ID, err)
			}
			p.release(batch.ID)
			continue
		}
		if p.summarizer == nil {
			p.release(batch.ID)
			continue
		}

		ok := p.pool.Submit(func(ctx context.Context) {
			defer p.release(batch.ID)
			if err := p.summarizeBatch(ctx, batch, activities); err != nil {
				log.Printf("WARNING: daemon: summarize batch %s: %v", batch.ID, err)
			}
		})
		if !ok {
			// Queue full; the batch stays pending for the next cycle.
			p.release(batch.ID)
		}
	}
	return nil
}

func (p *Processor) claim(batchID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[batchID] {
		return false
	}
	p.inflight[batchID] = true
	return true
}

func (p *Processor) release(batchID string) {
	p.mu.Lock()
	delete(p.inflight, batchID)
	p.mu.Unlock()
}

// summarizeBatch runs one batch through the summarizer and persists the
// result. The batch is marked processed only after every observation is
// durably stored, so a crash mid-way re-runs the whole batch.
func (p *Processor) summarizeBatch(ctx context.Context, batch memory.PromptBatch, activities []memory.Activity) error {
	req := buildRequest(batch, activities)

	resp, err := p.summarizer.Summarize(ctx, req)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	var stored []memory.StoredObservation
	for _, obs := range resp.Observations {
		if strings.TrimSpace(obs.Text) == "" {
			continue
		}
		id, err := p.store.StoreObservation(memory.StoreObservationParams{
			SessionID:   batch.SessionID,
			Observation: obs.Text,
			MemoryType:  obs.MemoryType,
			Context:     obs.Context,
			Importance:  obs.Importance,
		})
		if err != nil {
			return fmt.Errorf("store observation: %w", err)
		}
		rec, err := p.store.GetObservation(id)
		if err != nil {
			return fmt.Errorf("load observation: %w", err)
		}
		stored = append(stored, *rec)
	}

	if resp.SessionSummary != "" {
		if err := p.store.SetBatchResponseSummary(batch.ID, resp.SessionSummary); err != nil {
			log.Printf("WARNING: daemon: batch %s summary: %v", batch.ID, err)
		}
	}

	if err := p.store.MarkBatchProcessed(batch.ID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	// Indexing failures are not fatal: phase 5 retries them.
	p.indexObservations(ctx, stored)
	return nil
}

// buildRequest shapes a batch's activities into a summarization request.
func buildRequest(batch memory.PromptBatch, activities []memory.Activity) summarize.Request {
	var req summarize.Request
	seenWrites := map[string]bool{}

	for _, a := range activities {
		line := a.ToolName
		if a.FilePath != "" {
			line += " " + a.FilePath
		}
		if a.OutputSummary != "" {
			line += ": " + memory.Truncate(a.OutputSummary, 200)
		}
		if !a.Success {
			line += " [FAILED"
			if a.ErrorMessage != "" {
				line += ": " + memory.Truncate(a.ErrorMessage, 120)
			}
			line += "]"
		}
		req.ActivityLines = append(req.ActivityLines, line)

		tool := strings.ToLower(a.ToolName)
		switch {
		case a.FilePath == "":
			if strings.Contains(tool, "bash") || strings.Contains(tool, "shell") || strings.Contains(tool, "command") {
				req.CommandsRun = append(req.CommandsRun, memory.Truncate(a.OutputSummary, 120))
			}
		case strings.Contains(tool, "write") || strings.Contains(tool, "create"):
			if !seenWrites[a.FilePath] {
				seenWrites[a.FilePath] = true
				req.FilesCreated = append(req.FilesCreated, a.FilePath)
			}
		case strings.Contains(tool, "edit") || strings.Contains(tool, "patch") || strings.Contains(tool, "replace"):
			if !seenWrites[a.FilePath] {
				seenWrites[a.FilePath] = true
				req.FilesModified = append(req.FilesModified, a.FilePath)
			}
		default:
			req.FilesRead = append(req.FilesRead, a.FilePath)
		}
	}

	if batch.EndedAtEpoch != nil {
		req.DurationMinutes = float64(*batch.EndedAtEpoch-batch.StartedAtEpoch) / 60
	}
	if batch.ResponseSummary != nil {
		req.PriorContext = *batch.ResponseSummary
	}
	return req
}

// ─── Phase 5: index maintenance + titles ─────────────────────────────────────

// maintainIndex pushes recent observations missing from the vector index
// and titles processed sessions that still lack one.
func (p *Processor) maintainIndex(ctx context.Context) error {
	if p.index != nil {
		recent, err := p.store.RecentObservations(200)
		if err != nil {
			return err
		}
		var missing []memory.StoredObservation
		p.mu.Lock()
		for _, obs := range recent {
			if !p.indexed[obs.ID] {
				missing = append(missing, obs)
			}
		}
		p.mu.Unlock()
		p.indexObservations(ctx, missing)
	}

	sessions, err := p.store.SessionsNeedingTitles(p.cfg.SessionLimit)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		title, err := p.sessionTitle(sess)
		if err != nil {
			log.Printf("WARNING: daemon: title for session %s: %v", sess.ID, err)
			continue
		}
		if title == "" {
			continue
		}
		if err := p.store.SetSessionTitle(sess.ID, title); err != nil {
			log.Printf("WARNING: daemon: title for session %s: %v", sess.ID, err)
		}
	}
	return nil
}

// indexObservations adds observations to the memory collection, tracking
// which ids made it in so reindex passes skip them.
func (p *Processor) indexObservations(ctx context.Context, observations []memory.StoredObservation) {
	if p.index == nil || len(observations) == 0 {
		return
	}
	docs := make([]vector.Document, 0, len(observations))
	for _, obs := range observations {
		text := obs.Observation
		if obs.Context != "" {
			text += "\n" + obs.Context
		}
		docs = append(docs, vector.Document{
			ID:             obs.ID,
			Text:           text,
			CreatedAtEpoch: obs.CreatedAtEpoch,
			Metadata: map[string]string{
				"memory_type": string(obs.MemoryType),
				"session_id":  obs.SessionID,
				"importance":  fmt.Sprintf("%d", obs.Importance),
			},
		})
	}
	if err := p.index.IndexDocuments(ctx, vector.CollectionMemory, docs); err != nil {
		log.Printf("WARNING: daemon: index observations: %v", err)
		return
	}
	p.mu.Lock()
	for _, obs := range observations {
		p.indexed[obs.ID] = true
	}
	p.mu.Unlock()
}

// sessionTitle derives a short title from what the session produced:
// the first batch summary when one exists, otherwise the dominant file
// and agent. No model call; titles are cheap cycle work.
func (p *Processor) sessionTitle(sess memory.Session) (string, error) {
	batches, err := p.store.BatchesForSession(sess.ID)
	if err != nil {
		return "", err
	}
	for _, b := range batches {
		if b.ResponseSummary != nil && *b.ResponseSummary != "" {
			return memory.Truncate(firstLine(*b.ResponseSummary), 80), nil
		}
	}

	activities, err := p.store.ActivitiesForSession(sess.ID)
	if err != nil {
		return "", err
	}
	if len(activities) == 0 {
		return "", nil
	}
	counts := map[string]int{}
	for _, a := range activities {
		if a.FilePath != "" {
			counts[a.FilePath]++
		}
	}
	if len(counts) == 0 {
		return memory.Truncate(fmt.Sprintf("%s session in %s", sess.Agent, filepath.Base(sess.ProjectRoot)), 80), nil
	}
	paths := make([]string, 0, len(counts))
	for path := range counts {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		if counts[paths[i]] != counts[paths[j]] {
			return counts[paths[i]] > counts[paths[j]]
		}
		return paths[i] < paths[j]
	})
	return memory.Truncate(fmt.Sprintf("%s work on %s", sess.Agent, filepath.Base(paths[0])), 80), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
