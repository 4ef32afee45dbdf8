// Package retrieval implements hybrid retrieval: results from a dense vector
// index and a sparse keyword index are normalized onto a common scale, fused
// into one weighted ranking per unique document, and optionally improved via
// synonym-table query expansion and term-overlap reranking.
//
// The package is a stateless query-time fusion layer. It owns no index
// storage; both backends are injected at construction time and shared,
// externally-owned resources.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	alloyerr "github.com/alloysearch/alloy/internal/errors"
)

// DefaultTopK is the result-count bound used when none is configured.
const DefaultTopK = 10

// DocumentChunk is an immutable unit of retrievable content.
type DocumentChunk struct {
	// Content is the chunk text.
	Content string

	// Metadata carries source attributes (source, page, offset, ...).
	Metadata map[string]string
}

// ID returns the chunk's stable identity: a SHA-256 digest over the
// whitespace-normalized full content. Two independently-constructed chunks
// with textually identical content share an ID, so hits from both backends
// collapse during fusion. Full-content hashing avoids the false merges a
// short-prefix hash would produce for documents sharing a common opening.
func (c DocumentChunk) ID() string {
	return ChunkID(c.Content)
}

// ChunkID derives the stable identity digest for chunk content.
func ChunkID(content string) string {
	normalized := strings.Join(strings.Fields(content), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// VectorHit is a chunk paired with its backend-native vector distance.
// Smaller distance means closer.
type VectorHit struct {
	Chunk    DocumentChunk
	Distance float64
}

// ScoredDocument is a chunk with normalized per-source scores and the
// weighted combination used for ranking.
type ScoredDocument struct {
	Chunk DocumentChunk

	// VectorScore is the normalized vector similarity in [0,1].
	// Zero if the vector backend did not return the document.
	VectorScore float64

	// KeywordScore is the normalized keyword rank score in [0,1].
	// Zero if the keyword backend did not return the document.
	KeywordScore float64

	// CombinedScore is the weighted sum of the two component scores.
	CombinedScore float64

	// RerankScore is the term-overlap relevance score. Only populated when
	// reranking is enabled; it supersedes CombinedScore for final ordering.
	RerankScore float64
}

// FusionWeights is the relative importance of the two retrieval sources.
// The pair always sums to exactly 1 after construction.
type FusionWeights struct {
	Vector  float64
	Keyword float64
}

// NewFusionWeights builds normalized fusion weights. Unnormalized pairs are
// rescaled proportionally at construction time, never at use time. Negative
// weights and all-zero pairs are configuration errors.
func NewFusionWeights(vector, keyword float64) (FusionWeights, error) {
	if vector < 0 || keyword < 0 {
		return FusionWeights{}, alloyerr.New(alloyerr.ErrCodeWeightsInvalid,
			"fusion weights must be non-negative", nil)
	}
	total := vector + keyword
	if total == 0 {
		return FusionWeights{}, alloyerr.New(alloyerr.ErrCodeWeightsInvalid,
			"fusion weights must not both be zero", nil).
			WithSuggestion("set vector_weight or keyword_weight above zero")
	}
	return FusionWeights{
		Vector:  vector / total,
		Keyword: keyword / total,
	}, nil
}

// DefaultFusionWeights favors the vector source, matching the tuning the
// fusion defaults were validated with.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Vector: 0.7, Keyword: 0.3}
}

// VectorIndex is the dense retrieval backend. Implementations rank documents
// by embedding-space distance to the query.
type VectorIndex interface {
	// SimilaritySearchWithScore returns up to k chunks ordered nearest-first,
	// each with a raw distance >= 0.
	SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]VectorHit, error)

	// AddDocuments indexes the given chunks.
	AddDocuments(ctx context.Context, chunks []DocumentChunk) error
}

// KeywordIndex is the sparse retrieval backend. Implementations rank
// documents by lexical match quality, best-first. The backend exposes no
// calibrated score; rank position is the only signal.
type KeywordIndex interface {
	// GetRelevantDocuments returns the backend's full ranked output,
	// best-first.
	GetRelevantDocuments(ctx context.Context, query string) ([]DocumentChunk, error)

	// AddDocuments indexes the given chunks.
	AddDocuments(ctx context.Context, chunks []DocumentChunk) error
}

// Retriever is the retrieval-strategy interface. The basic and advanced
// retrievers are two variants of it; callers hold one instance chosen at
// construction time.
type Retriever interface {
	// Retrieve returns at most k scored documents ordered best-first.
	// An empty result is a valid outcome, not an error.
	Retrieve(ctx context.Context, query string, k int) ([]ScoredDocument, error)

	// AddDocuments forwards the chunks to both backends. Concurrent calls on
	// the same retriever are serialized.
	AddDocuments(ctx context.Context, chunks []DocumentChunk) error
}

// validateQuery applies the shared call-time input checks.
func validateQuery(query string, k int) error {
	if strings.TrimSpace(query) == "" {
		return alloyerr.New(alloyerr.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if k <= 0 {
		return alloyerr.New(alloyerr.ErrCodeInvalidLimit, "result count k must be positive", nil)
	}
	return nil
}
