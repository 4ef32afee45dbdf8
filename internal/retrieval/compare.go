package retrieval

import "context"

// snippetLength is how many characters of content a comparison preview keeps.
const snippetLength = 100

// MethodResult is one method's ranked output in a comparison run.
type MethodResult struct {
	// Snippets are content previews in rank order.
	Snippets []string

	// Count is the number of documents the method returned.
	Count int
}

// compareConfigs are the fixed weight configurations evaluated side by side,
// including the pure single-source baselines.
var compareConfigs = []struct {
	name    string
	weights FusionWeights
}{
	{"balanced", FusionWeights{Vector: 0.5, Keyword: 0.5}},
	{"vector_heavy", FusionWeights{Vector: 0.8, Keyword: 0.2}},
	{"keyword_heavy", FusionWeights{Vector: 0.2, Keyword: 0.8}},
	{"vector_only", FusionWeights{Vector: 1, Keyword: 0}},
	{"keyword_only", FusionWeights{Vector: 0, Keyword: 1}},
}

// CompareMethods runs several fixed weight configurations plus pure-vector
// and pure-keyword baselines over one query and returns each ranked result
// set side by side. The backends are queried once; only fusion weights vary.
// This is an evaluation aid, not part of the steady-state serving path.
func (r *HybridRetriever) CompareMethods(ctx context.Context, query string) (map[string]MethodResult, error) {
	if err := validateQuery(query, r.topK); err != nil {
		return nil, err
	}

	vecHits, kwDocs, err := r.fetchCandidates(ctx, query, 2*r.topK)
	if err != nil {
		return nil, err
	}

	methods := make(map[string]MethodResult, len(compareConfigs))
	for _, cfg := range compareConfigs {
		scored := r.fuser.Fuse(vecHits, kwDocs, cfg.weights)
		sortByCombinedScore(scored)
		scored = truncate(scored, r.topK)

		snippets := make([]string, len(scored))
		for i, doc := range scored {
			snippets[i] = snippet(doc.Chunk.Content)
		}
		methods[cfg.name] = MethodResult{
			Snippets: snippets,
			Count:    len(scored),
		}
	}

	return methods, nil
}

// snippet returns the first snippetLength characters of content.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}
	return string(runes[:snippetLength])
}
