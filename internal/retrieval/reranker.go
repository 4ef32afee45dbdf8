package retrieval

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Relevance blend for the term-overlap reranker.
const (
	jaccardWeight = 0.7
	densityWeight = 0.3
)

// TermOverlapReranker reorders a candidate set by lexical affinity to the
// original query: a blend of Jaccard term-set overlap and query-term density.
// The rerank score is a distinct ranking signal that supersedes the fused
// CombinedScore; it is not blended with it.
type TermOverlapReranker struct{}

// NewTermOverlapReranker creates a reranker.
func NewTermOverlapReranker() *TermOverlapReranker {
	return &TermOverlapReranker{}
}

// Rerank returns the documents in strict descending relevance order. The
// output is a permutation of the input: only order changes, and ties keep
// their relative input order.
func (r *TermOverlapReranker) Rerank(query string, docs []ScoredDocument) []ScoredDocument {
	queryTerms := termSet(query)

	reranked := make([]ScoredDocument, len(docs))
	copy(reranked, docs)
	for i := range reranked {
		reranked[i].RerankScore = r.Score(queryTerms, reranked[i].Chunk.Content)
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankScore > reranked[j].RerankScore
	})

	return reranked
}

// Score computes the relevance of one document against pre-tokenized query
// terms: 0.7*jaccard(term sets) + 0.3*term density.
func (r *TermOverlapReranker) Score(queryTerms map[string]struct{}, content string) float64 {
	docTerms := termSet(content)
	return jaccardWeight*jaccard(queryTerms, docTerms) +
		densityWeight*termDensity(queryTerms, content)
}

// termSet tokenizes into word-boundary terms (runs of letters and digits),
// lower-cased, as a set.
func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, term := range splitTerms(text) {
		set[term] = struct{}{}
	}
	return set
}

// splitTerms splits text on non-letter, non-digit boundaries and lower-cases
// each run.
func splitTerms(text string) []string {
	var terms []string
	var current strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		if current.Len() > 0 {
			terms = append(terms, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		terms = append(terms, current.String())
	}
	return terms
}

// jaccard is intersection size over union size; 0 when the union is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for term := range a {
		if _, ok := b[term]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// termDensity sums query-term occurrence counts in the document, divided by
// document character length.
func termDensity(queryTerms map[string]struct{}, content string) float64 {
	length := utf8.RuneCountInString(content)
	if length == 0 {
		return 0
	}
	docLower := strings.ToLower(content)
	occurrences := 0
	for term := range queryTerms {
		occurrences += strings.Count(docLower, term)
	}
	return float64(occurrences) / float64(length)
}
