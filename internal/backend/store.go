// Package backend provides the concrete retrieval backends: a Bleve BM25
// keyword index, an HNSW vector index over embedded chunks, and a SQLite
// chunk store both indexes hydrate results from. The indexes rank by ID; the
// chunk store is the single owner of chunk content and metadata.
package backend

import (
	"context"

	"github.com/alloysearch/alloy/internal/retrieval"
)

// ChunkStore persists chunk content and metadata keyed by chunk identity.
// Both indexes share one store, so saving the same chunk twice must be
// idempotent.
type ChunkStore interface {
	// SaveChunks upserts the given chunks.
	SaveChunks(ctx context.Context, chunks []retrieval.DocumentChunk) error

	// GetChunks returns the chunks for the given IDs in the same order.
	// Unknown IDs are skipped, not errors: an index may rank a chunk that
	// was deleted from the store since.
	GetChunks(ctx context.Context, ids []string) ([]retrieval.DocumentChunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases the store.
	Close() error
}
