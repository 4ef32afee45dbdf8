package retrieval

// ResultFuser combines the candidate sets from both backends into one
// ScoredDocument per unique chunk identity. It is a pure aggregation step:
// output order is first-seen order, and sorting stays with the orchestrator.
type ResultFuser struct {
	rankScore KeywordRankScorer
}

// FuserOption configures a ResultFuser.
type FuserOption func(*ResultFuser)

// WithKeywordRankScorer overrides the default 1/(rank+1) keyword scorer.
func WithKeywordRankScorer(scorer KeywordRankScorer) FuserOption {
	return func(f *ResultFuser) {
		if scorer != nil {
			f.rankScore = scorer
		}
	}
}

// NewResultFuser creates a fuser with the default rank scorer.
func NewResultFuser(opts ...FuserOption) *ResultFuser {
	f := &ResultFuser{rankScore: RankToScore}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fuse merges one query's vector hits and keyword documents under the given
// weights. Identity is structural (content digest), so the same underlying
// text returned by both backends collapses to a single entry with both score
// components populated. A document present in only one source is still
// included, with zero for the missing component.
func (f *ResultFuser) Fuse(vector []VectorHit, keyword []DocumentChunk, weights FusionWeights) []ScoredDocument {
	if len(vector) == 0 && len(keyword) == 0 {
		return []ScoredDocument{}
	}

	scores := make(map[string]*ScoredDocument, len(vector)+len(keyword))
	order := make([]string, 0, len(vector)+len(keyword))

	for _, hit := range vector {
		id := hit.Chunk.ID()
		entry, ok := scores[id]
		if !ok {
			entry = &ScoredDocument{Chunk: hit.Chunk}
			scores[id] = entry
			order = append(order, id)
		}
		// A backend may return near-duplicate chunks that normalize to the
		// same identity; the nearest occurrence wins.
		if sim := DistanceToSimilarity(hit.Distance); sim > entry.VectorScore {
			entry.VectorScore = sim
		}
	}

	for rank, chunk := range keyword {
		id := chunk.ID()
		entry, ok := scores[id]
		if !ok {
			entry = &ScoredDocument{Chunk: chunk}
			scores[id] = entry
			order = append(order, id)
		}
		if score := f.rankScore(rank); score > entry.KeywordScore {
			entry.KeywordScore = score
		}
	}

	results := make([]ScoredDocument, 0, len(order))
	for _, id := range order {
		entry := scores[id]
		entry.CombinedScore = weights.Vector*entry.VectorScore + weights.Keyword*entry.KeywordScore
		results = append(results, *entry)
	}

	return results
}

// DeduplicateScored collapses scored documents by content identity, keeping
// the first occurrence. Used when unioning result sets across expansion
// variants, where each variant's set is already internally fused.
func DeduplicateScored(docs []ScoredDocument) []ScoredDocument {
	seen := make(map[string]struct{}, len(docs))
	unique := make([]ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		id := doc.Chunk.ID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, doc)
	}
	return unique
}
