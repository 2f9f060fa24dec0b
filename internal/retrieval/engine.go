// Package retrieval answers semantic queries over indexed code and
// memory observations, and assembles bounded context for a task.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/HendryAvila/recall/internal/vector"
)

// Source identifies which collection a result came from.
type Source string

const (
	SourceCode   Source = "code"
	SourceMemory Source = "memory"
)

// ScoredResult is a similarity match with a blended confidence score.
type ScoredResult struct {
	vector.Result
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Config holds retrieval tuning.
type Config struct {
	MaxResults      int
	QueryCacheSize  int
	RecencyHalfLife float64 // days; similarity decays toward this age
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{MaxResults: 20, QueryCacheSize: 128, RecencyHalfLife: 30}
}

// Engine composes code search, memory search, and a unioned search over
// both, plus token-budgeted context assembly.
type Engine struct {
	index *vector.Index
	cfg   Config
	cache *lru.Cache[string, []ScoredResult]
	now   func() int64
}

// New creates an Engine over the given index.
func New(index *vector.Index, cfg Config, now func() int64) (*Engine, error) {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 128
	}
	if cfg.RecencyHalfLife <= 0 {
		cfg.RecencyHalfLife = 30
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	cache, err := lru.New[string, []ScoredResult](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("retrieval: create query cache: %w", err)
	}
	return &Engine{index: index, cfg: cfg, cache: cache, now: now}, nil
}

// ─── Search ──────────────────────────────────────────────────────────────────

// SearchCode returns the closest indexed code units, optionally filtered
// by doc type.
func (e *Engine) SearchCode(ctx context.Context, query string, limit int, docType vector.DocType) ([]ScoredResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("retrieval: query is empty")
	}
	raw, err := e.index.Query(ctx, vector.CollectionCode, query, limit, docType)
	if err != nil {
		return nil, err
	}
	return e.score(raw, SourceCode), nil
}

// SearchMemory returns the closest indexed memory observations.
func (e *Engine) SearchMemory(ctx context.Context, query string, limit int) ([]ScoredResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("retrieval: query is empty")
	}
	raw, err := e.index.Query(ctx, vector.CollectionMemory, query, limit, "")
	if err != nil {
		return nil, err
	}
	return e.score(raw, SourceMemory), nil
}

// SearchAll unions code and memory results with reciprocal-rank fusion,
// so a result ranked highly by either source surfaces near the top.
func (e *Engine) SearchAll(ctx context.Context, query string, limit int) ([]ScoredResult, error) {
	if limit <= 0 {
		limit = e.cfg.MaxResults
	}
	cacheKey := fmt.Sprintf("all|%d|%s", limit, query)
	if cached, ok := e.cache.Get(cacheKey); ok {
		return cached, nil
	}

	code, err := e.SearchCode(ctx, query, limit, "")
	if err != nil {
		return nil, err
	}
	mem, err := e.SearchMemory(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	// Reciprocal-rank fusion across the two ranked lists, blended with
	// each result's own confidence.
	const k = 60.0
	fused := make([]ScoredResult, 0, len(code)+len(mem))
	for rank, r := range code {
		r.Confidence = 0.5*r.Confidence + 0.5*(1.0/(k+float64(rank+1)))*k
		fused = append(fused, r)
	}
	for rank, r := range mem {
		r.Confidence = 0.5*r.Confidence + 0.5*(1.0/(k+float64(rank+1)))*k
		fused = append(fused, r)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Confidence > fused[j].Confidence
	})
	if len(fused) > limit {
		fused = fused[:limit]
	}

	e.cache.Add(cacheKey, fused)
	return fused, nil
}

// score blends raw cosine similarity with recency.
func (e *Engine) score(raw []vector.Result, source Source) []ScoredResult {
	now := e.now()
	results := make([]ScoredResult, 0, len(raw))
	for _, r := range raw {
		ageDays := float64(now-r.CreatedAtEpoch) / 86400.0
		if ageDays < 0 {
			ageDays = 0
		}
		recency := math.Exp(-ageDays * math.Ln2 / e.cfg.RecencyHalfLife)
		results = append(results, ScoredResult{
			Result:     r,
			Source:     source,
			Confidence: 0.8*float64(r.Similarity) + 0.2*recency,
		})
	}
	return results
}

// ─── Context assembly ────────────────────────────────────────────────────────

// estimateTokens approximates token count at 4 characters per token.
func estimateTokens(s string) int {
	return len(s) / 4
}

// BuildContext assembles a markdown context block for a task and the
// files currently in play, packing the highest-confidence results first
// until the token budget is exhausted.
func (e *Engine) BuildContext(ctx context.Context, task string, currentFiles []string, maxTokens int) (string, error) {
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("retrieval: task is empty")
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	query := task
	if len(currentFiles) > 0 {
		query += " " + strings.Join(currentFiles, " ")
	}

	results, err := e.SearchAll(ctx, query, e.cfg.MaxResults)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("## Relevant Context\n\n")
	used := estimateTokens(b.String())

	for _, r := range results {
		entry := formatEntry(r)
		cost := estimateTokens(entry)
		if used+cost > maxTokens {
			continue
		}
		b.WriteString(entry)
		used += cost
	}

	return b.String(), nil
}

func formatEntry(r ScoredResult) string {
	var b strings.Builder
	switch r.Source {
	case SourceMemory:
		fmt.Fprintf(&b, "- [memory/%s] %s", r.Metadata["memory_type"], r.Text)
	default:
		fmt.Fprintf(&b, "- [%s] `%s`: %s", r.DocType, vector.ShortPath(r.Path), r.Text)
	}
	fmt.Fprintf(&b, " (confidence %.2f)\n", r.Confidence)
	return b.String()
}
