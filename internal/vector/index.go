// Package vector maintains similarity-search collections over indexed
// code and memory observations, backed by chromem-go with cosine
// similarity.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/HendryAvila/recall/internal/embed"
)

// Collection names, separated by content class.
const (
	CollectionCode   = "code"
	CollectionMemory = "memory"
)

// Status is the index build state machine.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusIndexing Status = "indexing"
	StatusUpdating Status = "updating"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// ErrIndexBusy is returned when a build is requested while one is in
// progress. The caller retries on a later tick; requests are never
// queued silently.
var ErrIndexBusy = errors.New("vector: index build already in progress")

// Config holds index tuning. The graph parameters travel with each
// collection so an ANN-backed store picks them up at build time.
type Config struct {
	PersistDir     string
	EFConstruction int
	MaxNeighbors   int
}

// DefaultConfig returns the default index configuration.
func DefaultConfig() Config {
	return Config{EFConstruction: 200, MaxNeighbors: 16}
}

// Document is one unit submitted for indexing.
type Document struct {
	ID             string
	Text           string
	Path           string
	DocType        DocType
	CreatedAtEpoch int64
	Metadata       map[string]string
}

// Result is one similarity match.
type Result struct {
	ID             string
	Text           string
	Path           string
	DocType        DocType
	Similarity     float32
	CreatedAtEpoch int64
	Metadata       map[string]string
}

// Index owns the vector collections. Builds are mutually exclusive,
// governed by the status state machine; queries run concurrently.
type Index struct {
	chain *embed.Chain
	cfg   Config

	mu      sync.Mutex
	db      *chromem.DB
	status  Status
	lastErr error
}

// New creates an Index. With a persist dir the collections survive
// restarts; without one they live in memory (tests).
func New(chain *embed.Chain, cfg Config) (*Index, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistDir != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistDir, false)
		if err != nil {
			return nil, fmt.Errorf("vector: open persistent db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &Index{chain: chain, cfg: cfg, db: db, status: StatusIdle}, nil
}

// Status returns the current build state.
func (ix *Index) Status() Status {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.status
}

// LastError returns the error of the most recent failed build, if any.
func (ix *Index) LastError() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.lastErr
}

// beginBuild transitions into a build state, rejecting concurrent builds.
func (ix *Index) beginBuild(next Status) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.status == StatusIndexing || ix.status == StatusUpdating {
		return ErrIndexBusy
	}
	ix.status = next
	ix.lastErr = nil
	return nil
}

func (ix *Index) endBuild(err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err != nil {
		ix.status = StatusError
		ix.lastErr = err
		return
	}
	ix.status = StatusReady
}

// ─── Indexing ────────────────────────────────────────────────────────────────

// IndexDocuments embeds and upserts documents into a collection as an
// incremental update.
func (ix *Index) IndexDocuments(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ix.beginBuild(StatusUpdating); err != nil {
		return err
	}
	err := ix.addDocuments(ctx, collection, docs)
	ix.endBuild(err)
	return err
}

// Rebuild drops and repopulates both collections. A rebuild while any
// build is running returns ErrIndexBusy.
func (ix *Index) Rebuild(ctx context.Context, code, memories []Document) error {
	if err := ix.beginBuild(StatusIndexing); err != nil {
		return err
	}

	err := func() error {
		for _, name := range []string{CollectionCode, CollectionMemory} {
			if err := ix.db.DeleteCollection(name); err != nil {
				return fmt.Errorf("vector: drop collection %s: %w", name, err)
			}
		}
		if err := ix.addDocuments(ctx, CollectionCode, code); err != nil {
			return err
		}
		return ix.addDocuments(ctx, CollectionMemory, memories)
	}()

	ix.endBuild(err)
	return err
}

// RebuildCollection drops and repopulates one collection, leaving the
// other untouched. Same busy semantics as Rebuild.
func (ix *Index) RebuildCollection(ctx context.Context, collection string, docs []Document) error {
	if err := ix.beginBuild(StatusIndexing); err != nil {
		return err
	}

	err := func() error {
		if err := ix.db.DeleteCollection(collection); err != nil {
			return fmt.Errorf("vector: drop collection %s: %w", collection, err)
		}
		return ix.addDocuments(ctx, collection, docs)
	}()

	ix.endBuild(err)
	return err
}

func (ix *Index) addDocuments(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := ix.chain.Embed(ctx, collection, texts)
	if err != nil {
		return err
	}

	col, err := ix.collection(collection)
	if err != nil {
		return err
	}
	for i, d := range docs {
		meta := map[string]string{
			"doc_type":   string(d.DocType),
			"path":       d.Path,
			"created_at": strconv.FormatInt(d.CreatedAtEpoch, 10),
		}
		for k, v := range d.Metadata {
			meta[k] = v
		}
		doc := chromem.Document{
			ID:        d.ID,
			Content:   d.Text,
			Embedding: vectors[i],
			Metadata:  meta,
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("vector: add document %s: %w", d.ID, err)
		}
	}
	return nil
}

// ─── Querying ────────────────────────────────────────────────────────────────

// Query embeds the query text through the chain and returns the nearest
// documents in a collection by cosine similarity, optionally filtered by
// doc type.
func (ix *Index) Query(ctx context.Context, collection, query string, limit int, docType DocType) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	vectors, err := ix.chain.Embed(ctx, collection, []string{query})
	if err != nil {
		return nil, err
	}

	col, err := ix.collection(collection)
	if err != nil {
		return nil, err
	}
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	var where map[string]string
	if docType != "" {
		where = map[string]string{"doc_type": string(docType)}
	}

	raw, err := col.QueryEmbedding(ctx, vectors[0], limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: query %s: %w", collection, err)
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		createdAt, _ := strconv.ParseInt(r.Metadata["created_at"], 10, 64)
		meta := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			if k == "doc_type" || k == "path" || k == "created_at" {
				continue
			}
			meta[k] = v
		}
		results = append(results, Result{
			ID:             r.ID,
			Text:           r.Content,
			Path:           r.Metadata["path"],
			DocType:        DocType(r.Metadata["doc_type"]),
			Similarity:     r.Similarity,
			CreatedAtEpoch: createdAt,
			Metadata:       meta,
		})
	}
	return results, nil
}

// Count reports the number of documents in a collection.
func (ix *Index) Count(collection string) (int, error) {
	col, err := ix.collection(collection)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

func (ix *Index) collection(name string) (*chromem.Collection, error) {
	meta := map[string]string{
		"ef_construction": strconv.Itoa(ix.cfg.EFConstruction),
		"max_neighbors":   strconv.Itoa(ix.cfg.MaxNeighbors),
	}
	col, err := ix.db.GetOrCreateCollection(name, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: collection %s: %w", name, err)
	}
	return col, nil
}
