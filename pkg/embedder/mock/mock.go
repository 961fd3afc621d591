// Package mock provides a deterministic in-process embedder for tests and
// offline demos. Vectors are derived from a hash of the input text, so the
// same text always maps to the same unit vector and no network is needed.
package mock

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
)

// Embedder generates hash-seeded pseudo-random unit vectors.
type Embedder struct {
	dimensions int

	// Fail forces every call to return an error, for exercising
	// degraded-embedder paths in tests.
	Fail error
}

// New creates a mock embedder. dims defaults to 384 when zero, matching
// the platform's default embedding dimension.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 384
	}
	return &Embedder{dimensions: dims}
}

// Embed returns a deterministic unit vector for text.
func (m *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	if m.Fail != nil {
		return nil, m.Fail
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float64, m.dimensions)
	for i := range vec {
		// LCG keeps the sequence reproducible per seed.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float64(int64(seed)) / float64(math.MaxInt64)
	}
	return normalize(vec), nil
}

// EmbedBatch embeds each text independently, preserving order.
func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Dimensions returns the vector dimension.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// Close is a no-op.
func (m *Embedder) Close() error {
	return nil
}

// ErrUnavailable can be assigned to Fail to simulate an unreachable
// embedding backend.
var ErrUnavailable = errors.New("mock embedder unavailable")

func normalize(vec []float64) []float64 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
