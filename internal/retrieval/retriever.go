package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	alloyerr "github.com/alloysearch/alloy/internal/errors"
)

// HybridRetriever is the basic retrieval strategy: one query, both backends,
// normalize, fuse, deduplicate, sort, truncate. It holds immutable
// configuration plus references to the two externally-owned backends, so a
// single instance is safe for concurrent Retrieve calls.
type HybridRetriever struct {
	vector  VectorIndex
	keyword KeywordIndex
	weights FusionWeights
	topK    int
	fuser   *ResultFuser
	logger  *slog.Logger

	// addMu serializes AddDocuments calls on this instance. Reads do not
	// take it; the backends provide their own internal read consistency.
	addMu sync.Mutex
}

// Option configures a HybridRetriever.
type Option func(*HybridRetriever) error

// WithWeights sets the fusion weights.
func WithWeights(weights FusionWeights) Option {
	return func(r *HybridRetriever) error {
		r.weights = weights
		return nil
	}
}

// WithTopK sets the default result-count bound.
func WithTopK(k int) Option {
	return func(r *HybridRetriever) error {
		if k <= 0 {
			return alloyerr.New(alloyerr.ErrCodeConfigInvalid,
				"top_k must be positive", nil)
		}
		r.topK = k
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *HybridRetriever) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithFuser replaces the result fuser, e.g. to recalibrate the keyword rank
// scorer.
func WithFuser(fuser *ResultFuser) Option {
	return func(r *HybridRetriever) error {
		if fuser != nil {
			r.fuser = fuser
		}
		return nil
	}
}

// NewHybridRetriever creates the basic retrieval strategy over the two
// injected backends. Configuration problems fail fast here, before any
// backend call.
func NewHybridRetriever(vector VectorIndex, keyword KeywordIndex, opts ...Option) (*HybridRetriever, error) {
	if vector == nil {
		return nil, alloyerr.New(alloyerr.ErrCodeConfigInvalid, "vector index is required", nil)
	}
	if keyword == nil {
		return nil, alloyerr.New(alloyerr.ErrCodeConfigInvalid, "keyword index is required", nil)
	}

	r := &HybridRetriever{
		vector:  vector,
		keyword: keyword,
		weights: DefaultFusionWeights(),
		topK:    DefaultTopK,
		fuser:   NewResultFuser(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Weights returns the configured fusion weights.
func (r *HybridRetriever) Weights() FusionWeights {
	return r.weights
}

// TopK returns the configured default result-count bound.
func (r *HybridRetriever) TopK() int {
	return r.topK
}

// Retrieve runs the hybrid pipeline for one query and returns at most k
// documents ordered by combined score descending. The vector backend is
// asked for 2k candidates to compensate for overlap loss after fusion; the
// keyword backend contributes its full ranked output. Backend failures
// propagate unmodified to the caller: there is no second retrieval path to
// fall back to.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	if err := validateQuery(query, k); err != nil {
		return nil, err
	}

	start := time.Now()

	vecHits, kwDocs, err := r.fetchCandidates(ctx, query, 2*k)
	if err != nil {
		return nil, err
	}

	scored := r.fuser.Fuse(vecHits, kwDocs, r.weights)
	sortByCombinedScore(scored)
	scored = truncate(scored, k)

	r.logger.Debug("hybrid_retrieve",
		slog.String("query", query),
		slog.Int("vector_hits", len(vecHits)),
		slog.Int("keyword_hits", len(kwDocs)),
		slog.Int("results", len(scored)),
		slog.Duration("duration", time.Since(start)))

	return scored, nil
}

// AddDocuments forwards the chunks to both backends. Concurrent additions on
// the same retriever are serialized; additions are exclusive relative to
// each other but not to reads, which the backends must tolerate.
func (r *HybridRetriever) AddDocuments(ctx context.Context, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	r.addMu.Lock()
	defer r.addMu.Unlock()

	if err := r.vector.AddDocuments(ctx, chunks); err != nil {
		return alloyerr.BackendError("vector index add failed", err).
			WithDetail("backend", "vector")
	}
	if err := r.keyword.AddDocuments(ctx, chunks); err != nil {
		return alloyerr.BackendError("keyword index add failed", err).
			WithDetail("backend", "keyword")
	}

	r.logger.Info("documents_added", slog.Int("count", len(chunks)))
	return nil
}

// fetchCandidates queries both backends concurrently for a single query.
// Either backend failing fails the fetch; the surviving call is abandoned
// through context cancellation.
func (r *HybridRetriever) fetchCandidates(ctx context.Context, query string, vectorK int) ([]VectorHit, []DocumentChunk, error) {
	var (
		vecHits []VectorHit
		kwDocs  []DocumentChunk
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := r.vector.SimilaritySearchWithScore(gctx, query, vectorK)
		if err != nil {
			return alloyerr.BackendError("vector search failed", err).
				WithDetail("backend", "vector")
		}
		vecHits = hits
		return nil
	})

	g.Go(func() error {
		docs, err := r.keyword.GetRelevantDocuments(gctx, query)
		if err != nil {
			return alloyerr.BackendError("keyword search failed", err).
				WithDetail("backend", "keyword")
		}
		kwDocs = docs
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return vecHits, kwDocs, nil
}

// sortByCombinedScore orders documents by combined score descending.
// The sort is stable so ties keep the fuser's first-seen order, which makes
// results deterministic.
func sortByCombinedScore(docs []ScoredDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CombinedScore > docs[j].CombinedScore
	})
}

// truncate bounds a result list to at most k entries.
func truncate(docs []ScoredDocument, k int) []ScoredDocument {
	if len(docs) <= k {
		return docs
	}
	return docs[:k]
}

// Verify interface implementation at compile time.
var _ Retriever = (*HybridRetriever)(nil)
