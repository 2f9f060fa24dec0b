package embed

import (
	"context"
	"hash/fnv"
	"math"
)

// Local is a deterministic, offline embedding backend. Vectors derive
// from an FNV hash of the text fed through an LCG, then unit-normalized,
// so identical text always lands at the same point. It stands in when no
// model-backed backend is configured and keeps tests hermetic.
type Local struct {
	name       string
	dimensions int
}

// NewLocal creates a local backend with the given vector size.
func NewLocal(dimensions int) *Local {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Local{name: "local", dimensions: dimensions}
}

func (l *Local) Name() string    { return l.name }
func (l *Local) Dimensions() int { return l.dimensions }
func (l *Local) Available() bool { return true }

// Embed produces one deterministic unit vector per text.
func (l *Local) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = l.embedOne(text)
	}
	return vectors, nil
}

func (l *Local) embedOne(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, l.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
