// Package embed provides text embedding for the vector backend.
//
// Embedding-model invocation is an external concern: the retrieval core only
// depends on the Embedder interface. The static embedder gives a
// deterministic, dependency-free default so indexing and search work without
// a model server.
package embed

import "context"

// StaticDimensions is the embedding dimension for the static embedder.
const StaticDimensions = 256

// DefaultCacheSize is the default number of query embeddings to cache.
const DefaultCacheSize = 1000

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns a stable identifier for the embedding model.
	ModelName() string

	// Close releases resources.
	Close() error
}
