// Package embedder defines the text embedding capability used by the
// memory engine.
//
// A Provider turns text into fixed-dimension vectors. The dimension is
// fixed per provider configuration; stores reject vectors of any other
// length at write time.
package embedder

import "context"

// Provider is implemented by all embedding backends.
type Provider interface {
	// Embed converts a single text into a vector of Dimensions() length.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple texts into vectors, one per input and
	// in input order. Preferred during ingestion to amortize per-call
	// overhead.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the vector dimension produced by this provider.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}
