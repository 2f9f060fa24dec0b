// Package embed converts text to vectors through an ordered chain of
// pluggable backends with health tracking and failover.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Backend is one text-to-vector provider.
type Backend interface {
	// Name identifies the backend in stats and logs.
	Name() string
	// Dimensions is the vector size this backend produces.
	Dimensions() int
	// Available reports whether the backend can currently serve requests.
	Available() bool
	// Embed converts texts to vectors, one per input, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrNoBackendAvailable is returned when every backend in the chain failed.
var ErrNoBackendAvailable = errors.New("embed: no backend available")

// DimensionMismatchError reports a backend returning vectors of a
// different size than the one a collection was created with.
type DimensionMismatchError struct {
	Collection string
	Backend    string
	Want       int
	Got        int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embed: backend %s returned %d-dim vectors for collection %s pinned at %d",
		e.Backend, e.Got, e.Collection, e.Want)
}

// BackendStats is a snapshot of one backend's health counters.
type BackendStats struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
	Successes  uint64 `json:"successes"`
	Failures   uint64 `json:"failures"`
}

// Chain tries backends in order, advancing past failures. It also pins
// the vector dimensionality per collection: once a collection has been
// embedded at D, a backend producing a different D raises a
// dimension-mismatch error instead of silently corrupting the index.
type Chain struct {
	mu        sync.Mutex
	backends  []Backend
	successes map[string]uint64
	failures  map[string]uint64
	pinned    map[string]int // collection → dimensionality
}

// NewChain creates a chain over the given backends, tried in order.
func NewChain(backends ...Backend) *Chain {
	return &Chain{
		backends:  backends,
		successes: make(map[string]uint64),
		failures:  make(map[string]uint64),
		pinned:    make(map[string]int),
	}
}

// Embed converts texts to vectors for the named collection. Backends are
// tried in order; a timeout, unavailability, or malformed response moves
// on to the next one. A dimension mismatch against the collection's
// pinned size is terminal, not a failover.
func (c *Chain) Embed(ctx context.Context, collection string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for _, b := range c.backends {
		if !b.Available() {
			c.recordFailure(b.Name())
			continue
		}

		vectors, err := b.Embed(ctx, texts)
		if err != nil {
			c.recordFailure(b.Name())
			lastErr = err
			log.Printf("WARNING: embed: backend %s failed, trying next: %v", b.Name(), err)
			continue
		}
		if len(vectors) != len(texts) || malformed(vectors) {
			c.recordFailure(b.Name())
			lastErr = fmt.Errorf("backend %s returned malformed response", b.Name())
			log.Printf("WARNING: embed: %v", lastErr)
			continue
		}

		got := len(vectors[0])
		if err := c.checkDimensions(collection, b.Name(), got); err != nil {
			c.recordFailure(b.Name())
			return nil, err
		}

		c.recordSuccess(b.Name())
		return vectors, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: last error: %v", ErrNoBackendAvailable, lastErr)
	}
	return nil, ErrNoBackendAvailable
}

// Dimensions returns the pinned dimensionality for a collection, or the
// first available backend's size when nothing is pinned yet.
func (c *Chain) Dimensions(collection string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.pinned[collection]; ok {
		return d
	}
	for _, b := range c.backends {
		if b.Available() {
			return b.Dimensions()
		}
	}
	return 0
}

// Stats returns health counters for every backend in chain order.
func (c *Chain) Stats() []BackendStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := make([]BackendStats, 0, len(c.backends))
	for _, b := range c.backends {
		stats = append(stats, BackendStats{
			Name:       b.Name(),
			Dimensions: b.Dimensions(),
			Available:  b.Available(),
			Successes:  c.successes[b.Name()],
			Failures:   c.failures[b.Name()],
		})
	}
	return stats
}

func (c *Chain) checkDimensions(collection, backend string, got int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	want, ok := c.pinned[collection]
	if !ok {
		c.pinned[collection] = got
		return nil
	}
	if want != got {
		return &DimensionMismatchError{Collection: collection, Backend: backend, Want: want, Got: got}
	}
	return nil
}

func (c *Chain) recordSuccess(name string) {
	c.mu.Lock()
	c.successes[name]++
	c.mu.Unlock()
}

func (c *Chain) recordFailure(name string) {
	c.mu.Lock()
	c.failures[name]++
	c.mu.Unlock()
}

func malformed(vectors [][]float32) bool {
	if len(vectors) == 0 {
		return true
	}
	d := len(vectors[0])
	if d == 0 {
		return true
	}
	for _, v := range vectors[1:] {
		if len(v) != d {
			return true
		}
	}
	return false
}
