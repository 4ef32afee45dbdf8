package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloysearch/alloy/internal/embed"
	alloyerr "github.com/alloysearch/alloy/internal/errors"
	"github.com/alloysearch/alloy/internal/retrieval"
)

func newVectorIndex(t *testing.T) *HNSWVectorIndex {
	t.Helper()
	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })
	idx, err := NewHNSWVectorIndex(embedder, newMemoryStore(t), VectorConfig{})
	require.NoError(t, err)
	return idx
}

func TestNewHNSWVectorIndex_RequiresDependencies(t *testing.T) {
	_, err := NewHNSWVectorIndex(nil, newMemoryStore(t), VectorConfig{})
	require.Error(t, err)

	embedder := embed.NewStaticEmbedder()
	defer embedder.Close()
	_, err = NewHNSWVectorIndex(embedder, nil, VectorConfig{})
	require.Error(t, err)
}

func TestHNSWVectorIndex_ExactContentIsNearest(t *testing.T) {
	idx := newVectorIndex(t)
	ctx := context.Background()

	docs := []retrieval.DocumentChunk{
		testChunk("apple stock quarterly earnings"),
		testChunk("weather forecast rain tomorrow"),
		testChunk("gardening tips for spring"),
	}
	require.NoError(t, idx.AddDocuments(ctx, docs))

	hits, err := idx.SimilaritySearchWithScore(ctx, "apple stock quarterly earnings", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, docs[0].ID(), hits[0].Chunk.ID(),
		"an identical query must retrieve its own document first")
	assert.InDelta(t, 0, hits[0].Distance, 1e-3)
	for _, hit := range hits {
		assert.GreaterOrEqual(t, hit.Distance, -1e-6, "cosine distances must not be negative")
	}
}

func TestHNSWVectorIndex_EmptyIndexReturnsNothing(t *testing.T) {
	idx := newVectorIndex(t)

	hits, err := idx.SimilaritySearchWithScore(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWVectorIndex_BoundsK(t *testing.T) {
	idx := newVectorIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.AddDocuments(ctx, []retrieval.DocumentChunk{
		testChunk("doc one"), testChunk("doc two"), testChunk("doc three"),
	}))

	hits, err := idx.SimilaritySearchWithScore(ctx, "doc", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), 2)
}

func TestHNSWVectorIndex_ReAddingReplacesVector(t *testing.T) {
	idx := newVectorIndex(t)
	ctx := context.Background()

	doc := testChunk("repeated document")
	require.NoError(t, idx.AddDocuments(ctx, []retrieval.DocumentChunk{doc}))
	require.NoError(t, idx.AddDocuments(ctx, []retrieval.DocumentChunk{doc}))

	assert.Equal(t, 1, idx.Count())

	hits, err := idx.SimilaritySearchWithScore(ctx, "repeated document", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1, "the orphaned node must not surface in results")
}

func TestHNSWVectorIndex_EmbedErrorIsCoded(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	require.NoError(t, embedder.Close())

	idx, err := NewHNSWVectorIndex(embedder, newMemoryStore(t), VectorConfig{})
	require.NoError(t, err)

	_, err = idx.SimilaritySearchWithScore(context.Background(), "query", 3)
	require.Error(t, err)
	assert.Equal(t, alloyerr.ErrCodeEmbeddingFailed, alloyerr.CodeOf(err))
}

func TestHNSWVectorIndex_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	idx, err := NewHNSWVectorIndex(embedder, store, VectorConfig{})
	require.NoError(t, err)

	docs := []retrieval.DocumentChunk{
		testChunk("persisted document one"),
		testChunk("persisted document two"),
	}
	require.NoError(t, idx.AddDocuments(ctx, docs))

	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	require.NoError(t, idx.Save(path))

	restored, err := NewHNSWVectorIndex(embedder, store, VectorConfig{})
	require.NoError(t, err)
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.Count())

	hits, err := restored.SimilaritySearchWithScore(ctx, "persisted document one", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, docs[0].ID(), hits[0].Chunk.ID())
}
