package retrieval

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	alloyerr "github.com/alloysearch/alloy/internal/errors"
)

// DefaultVariantParallelism bounds concurrent per-variant pipelines.
const DefaultVariantParallelism = 4

// AdvancedHybridRetriever is the advanced retrieval strategy: the query is
// expanded into synonym variants, each variant runs the full
// retrieve-and-fuse pipeline independently and in parallel, the scored sets
// are unioned with deduplication across the whole union, and the merged set
// is reranked by term overlap before truncation.
type AdvancedHybridRetriever struct {
	base        *HybridRetriever
	expander    *QueryExpander
	reranker    *TermOverlapReranker
	parallelism int

	// allowPartial tolerates individual variant failures and proceeds with
	// the surviving variants. Expansion variants are a quality enhancement,
	// not a correctness requirement, so this defaults to true. A failure of
	// the original-query variant always propagates regardless.
	allowPartial bool
}

// AdvancedOption configures an AdvancedHybridRetriever.
type AdvancedOption func(*AdvancedHybridRetriever) error

// WithSynonyms sets the synonym table used for query expansion.
func WithSynonyms(table SynonymTable) AdvancedOption {
	return func(r *AdvancedHybridRetriever) error {
		r.expander = NewQueryExpander(table)
		return nil
	}
}

// WithVariantParallelism bounds how many variant pipelines run concurrently.
func WithVariantParallelism(n int) AdvancedOption {
	return func(r *AdvancedHybridRetriever) error {
		if n <= 0 {
			return alloyerr.New(alloyerr.ErrCodeConfigInvalid,
				"variant parallelism must be positive", nil)
		}
		r.parallelism = n
		return nil
	}
}

// WithPartialResults sets whether per-variant backend failures are tolerated
// (proceed with surviving variants) or propagated.
func WithPartialResults(allow bool) AdvancedOption {
	return func(r *AdvancedHybridRetriever) error {
		r.allowPartial = allow
		return nil
	}
}

// NewAdvancedHybridRetriever wraps a basic retriever with query expansion and
// term-overlap reranking.
func NewAdvancedHybridRetriever(base *HybridRetriever, opts ...AdvancedOption) (*AdvancedHybridRetriever, error) {
	if base == nil {
		return nil, alloyerr.New(alloyerr.ErrCodeConfigInvalid, "base retriever is required", nil)
	}

	r := &AdvancedHybridRetriever{
		base:         base,
		expander:     NewQueryExpander(nil),
		reranker:     NewTermOverlapReranker(),
		parallelism:  DefaultVariantParallelism,
		allowPartial: true,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Retrieve expands the query, runs every variant's retrieve-and-fuse
// pipeline in parallel, deduplicates the union, reranks, and truncates to k.
// Each variant requests k vector candidates rather than 2k, since results
// are merged across variants anyway.
func (r *AdvancedHybridRetriever) Retrieve(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	if err := validateQuery(query, k); err != nil {
		return nil, err
	}

	start := time.Now()
	variants := r.expander.Expand(query)

	variantResults := make([][]ScoredDocument, len(variants))
	variantErrs := make([]error, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	for i, variant := range variants {
		g.Go(func() error {
			vecHits, kwDocs, err := r.base.fetchCandidates(gctx, variant, k)
			if err != nil {
				variantErrs[i] = err
				if r.allowPartial {
					// Tolerated: this variant contributes nothing.
					return nil
				}
				return err
			}
			variantResults[i] = r.base.fuser.Fuse(vecHits, kwDocs, r.base.weights)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The original query is always the first variant; its failure is never
	// silently dropped.
	if variantErrs[0] != nil {
		return nil, variantErrs[0]
	}

	merged := make([]ScoredDocument, 0, len(variants)*k)
	failed := 0
	for i, results := range variantResults {
		if variantErrs[i] != nil {
			failed++
			r.base.logger.Warn("expansion variant failed, continuing with partial results",
				slog.String("variant", variants[i]),
				slog.String("error", variantErrs[i].Error()))
			continue
		}
		merged = append(merged, results...)
	}
	if failed == len(variants) {
		return nil, variantErrs[0]
	}

	unique := DeduplicateScored(merged)
	reranked := r.reranker.Rerank(query, unique)
	reranked = truncate(reranked, k)

	r.base.logger.Debug("advanced_retrieve",
		slog.String("query", query),
		slog.Int("variants", len(variants)),
		slog.Int("failed_variants", failed),
		slog.Int("unique_candidates", len(unique)),
		slog.Int("results", len(reranked)),
		slog.Duration("duration", time.Since(start)))

	return reranked, nil
}

// AddDocuments forwards to the underlying basic retriever, which serializes
// additions.
func (r *AdvancedHybridRetriever) AddDocuments(ctx context.Context, chunks []DocumentChunk) error {
	return r.base.AddDocuments(ctx, chunks)
}

// Variants exposes the expansion the retriever would use for a query.
// Useful for evaluation tooling and tests.
func (r *AdvancedHybridRetriever) Variants(query string) []string {
	return r.expander.Expand(query)
}

// Verify interface implementation at compile time.
var _ Retriever = (*AdvancedHybridRetriever)(nil)
