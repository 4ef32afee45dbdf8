package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alloyerr "github.com/alloysearch/alloy/internal/errors"
)

// --- Test fakes -------------------------------------------------------------

// fakeVectorIndex serves canned hits, optionally keyed by query.
type fakeVectorIndex struct {
	mu       sync.Mutex
	hits     []VectorHit
	perQuery map[string][]VectorHit
	errFor   map[string]error
	err      error
	gotK     []int
	added    [][]DocumentChunk
}

func (f *fakeVectorIndex) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.gotK = append(f.gotK, k)

	if f.err != nil {
		return nil, f.err
	}
	if err, ok := f.errFor[query]; ok {
		return nil, err
	}

	hits := f.hits
	if f.perQuery != nil {
		hits = f.perQuery[query]
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeVectorIndex) AddDocuments(ctx context.Context, chunks []DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, chunks)
	return nil
}

// fakeKeywordIndex serves canned ranked documents, optionally keyed by query.
type fakeKeywordIndex struct {
	mu       sync.Mutex
	docs     []DocumentChunk
	perQuery map[string][]DocumentChunk
	errFor   map[string]error
	err      error
	added    [][]DocumentChunk
}

func (f *fakeKeywordIndex) GetRelevantDocuments(ctx context.Context, query string) ([]DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if err, ok := f.errFor[query]; ok {
		return nil, err
	}
	if f.perQuery != nil {
		return f.perQuery[query], nil
	}
	return f.docs, nil
}

func (f *fakeKeywordIndex) AddDocuments(ctx context.Context, chunks []DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, chunks)
	return nil
}

func chunk(content string) DocumentChunk {
	return DocumentChunk{Content: content, Metadata: map[string]string{"source": "test"}}
}

func chunks(contents ...string) []DocumentChunk {
	out := make([]DocumentChunk, len(contents))
	for i, c := range contents {
		out[i] = chunk(c)
	}
	return out
}

func ids(docs []ScoredDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Chunk.ID()
	}
	return out
}

// --- Construction -----------------------------------------------------------

func TestNewHybridRetriever_RequiresBackends(t *testing.T) {
	_, err := NewHybridRetriever(nil, &fakeKeywordIndex{})
	require.Error(t, err)
	assert.Equal(t, alloyerr.ErrCodeConfigInvalid, alloyerr.CodeOf(err))

	_, err = NewHybridRetriever(&fakeVectorIndex{}, nil)
	require.Error(t, err)
	assert.Equal(t, alloyerr.ErrCodeConfigInvalid, alloyerr.CodeOf(err))
}

func TestNewHybridRetriever_RejectsNonPositiveTopK(t *testing.T) {
	_, err := NewHybridRetriever(&fakeVectorIndex{}, &fakeKeywordIndex{}, WithTopK(0))
	require.Error(t, err)
	assert.Equal(t, alloyerr.ErrCodeConfigInvalid, alloyerr.CodeOf(err))
}

// --- Retrieve ---------------------------------------------------------------

func TestRetrieve_ValidatesInput(t *testing.T) {
	r, err := NewHybridRetriever(&fakeVectorIndex{}, &fakeKeywordIndex{})
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "   ", 5)
	assert.Equal(t, alloyerr.ErrCodeQueryEmpty, alloyerr.CodeOf(err))

	_, err = r.Retrieve(context.Background(), "query", 0)
	assert.Equal(t, alloyerr.ErrCodeInvalidLimit, alloyerr.CodeOf(err))
}

func TestRetrieve_RequestsDoubleKFromVectorBackend(t *testing.T) {
	vec := &fakeVectorIndex{}
	r, err := NewHybridRetriever(vec, &fakeKeywordIndex{})
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "query", 7)
	require.NoError(t, err)
	require.Len(t, vec.gotK, 1)
	assert.Equal(t, 14, vec.gotK[0], "vector backend must be asked for 2k candidates")
}

func TestRetrieve_EmptyBackendsYieldEmptyResult(t *testing.T) {
	r, err := NewHybridRetriever(&fakeVectorIndex{}, &fakeKeywordIndex{})
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "no matches anywhere", 5)
	require.NoError(t, err, "an empty match set is a valid outcome, not a failure")
	assert.Empty(t, results)
}

func TestRetrieve_BoundsResultCount(t *testing.T) {
	docs := chunks("d1", "d2", "d3", "d4", "d5", "d6")
	hits := make([]VectorHit, len(docs))
	for i, d := range docs {
		hits[i] = VectorHit{Chunk: d, Distance: float64(i) * 0.1}
	}

	r, err := NewHybridRetriever(&fakeVectorIndex{hits: hits}, &fakeKeywordIndex{docs: docs[:3]})
	require.NoError(t, err)

	for _, k := range []int{1, 3, 6, 20} {
		results, err := r.Retrieve(context.Background(), "query", k)
		require.NoError(t, err)
		want := k
		if want > 6 {
			want = 6 // min(k, unique matched documents)
		}
		assert.Len(t, results, want, "k=%d", k)
	}
}

func TestRetrieve_ScenarioA_FusedRankingAtKFive(t *testing.T) {
	// Vector backend returns 10 chunks with increasing distances; keyword
	// backend returns 6 chunks, 4 of which overlap the vector set.
	vecDocs := chunks("v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9", "v10")
	hits := make([]VectorHit, len(vecDocs))
	for i, d := range vecDocs {
		hits[i] = VectorHit{Chunk: d, Distance: 0.1 + 0.2*float64(i)}
	}
	kwDocs := []DocumentChunk{vecDocs[1], vecDocs[0], vecDocs[4], vecDocs[7], chunk("k1"), chunk("k2")}

	weights, err := NewFusionWeights(0.7, 0.3)
	require.NoError(t, err)

	r, err := NewHybridRetriever(
		&fakeVectorIndex{hits: hits},
		&fakeKeywordIndex{docs: kwDocs},
		WithWeights(weights),
	)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)

	// 10 vector + 6 keyword with 4 overlapping = 12 unique; min(5, 12) = 5.
	require.Len(t, results, 5)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].CombinedScore, results[i].CombinedScore,
			"results must be ordered by combined score descending")
	}

	// The overlapping top documents carry both components.
	top := results[0]
	assert.Positive(t, top.VectorScore)
	assert.Positive(t, top.KeywordScore)
}

func TestRetrieve_ScenarioC_EmptyKeywordBackend(t *testing.T) {
	docs := chunks("a", "b", "c")
	hits := []VectorHit{
		{Chunk: docs[0], Distance: 0.1},
		{Chunk: docs[1], Distance: 0.5},
		{Chunk: docs[2], Distance: 1.2},
	}
	weights, err := NewFusionWeights(0.5, 0.5)
	require.NoError(t, err)

	r, err := NewHybridRetriever(
		&fakeVectorIndex{hits: hits},
		&fakeKeywordIndex{},
		WithWeights(weights),
	)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, doc := range results {
		assert.Zero(t, doc.KeywordScore)
		assert.InDelta(t, 0.5*doc.VectorScore, doc.CombinedScore, 1e-12)
	}
}

func TestRetrieve_PureVectorMatchesBackendOrder(t *testing.T) {
	docs := chunks("v1", "v2", "v3", "v4")
	hits := make([]VectorHit, len(docs))
	for i, d := range docs {
		hits[i] = VectorHit{Chunk: d, Distance: 0.2 * float64(i+1)}
	}
	weights, err := NewFusionWeights(1, 0)
	require.NoError(t, err)

	r, err := NewHybridRetriever(
		&fakeVectorIndex{hits: hits},
		&fakeKeywordIndex{docs: chunks("v3", "v1", "other")},
		WithWeights(weights),
	)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "query", 4)
	require.NoError(t, err)
	require.Len(t, results, 4)

	want := []string{docs[0].ID(), docs[1].ID(), docs[2].ID(), docs[3].ID()}
	assert.Equal(t, want, ids(results), "pure-vector weights must reproduce the vector backend order")
}

func TestRetrieve_PureKeywordMatchesBackendOrder(t *testing.T) {
	kwDocs := chunks("k1", "k2", "k3")
	weights, err := NewFusionWeights(0, 1)
	require.NoError(t, err)

	r, err := NewHybridRetriever(
		&fakeVectorIndex{hits: []VectorHit{{Chunk: kwDocs[2], Distance: 0.01}}},
		&fakeKeywordIndex{docs: kwDocs},
		WithWeights(weights),
	)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	want := []string{kwDocs[0].ID(), kwDocs[1].ID(), kwDocs[2].ID()}
	assert.Equal(t, want, ids(results), "pure-keyword weights must reproduce the keyword backend ranking")
}

func TestRetrieve_DeduplicatesAcrossBackends(t *testing.T) {
	shared := chunk("the same underlying text")
	// Backends return independently-constructed chunk values for the
	// same content; structural identity must collapse them.
	sharedCopy := DocumentChunk{Content: "the  same underlying   text", Metadata: map[string]string{"source": "keyword"}}

	r, err := NewHybridRetriever(
		&fakeVectorIndex{hits: []VectorHit{{Chunk: shared, Distance: 0.3}}},
		&fakeKeywordIndex{docs: []DocumentChunk{sharedCopy}},
	)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1, "duplicate hits must collapse to one entry")
	assert.Positive(t, results[0].VectorScore)
	assert.Positive(t, results[0].KeywordScore)
}

func TestRetrieve_VectorBackendErrorPropagates(t *testing.T) {
	boom := errors.New("index offline")
	r, err := NewHybridRetriever(
		&fakeVectorIndex{err: boom},
		&fakeKeywordIndex{docs: chunks("k1")},
	)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "query", 3)
	require.Error(t, err)
	assert.Equal(t, alloyerr.ErrCodeBackendUnavailable, alloyerr.CodeOf(err))
	assert.ErrorIs(t, err, boom, "the cause must remain reachable")
}

func TestRetrieve_KeywordBackendErrorPropagates(t *testing.T) {
	boom := errors.New("keyword index offline")
	r, err := NewHybridRetriever(
		&fakeVectorIndex{hits: []VectorHit{{Chunk: chunk("v1"), Distance: 0.1}}},
		&fakeKeywordIndex{err: boom},
	)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "query", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRetrieve_ConcurrentCallsAreSafe(t *testing.T) {
	docs := chunks("a", "b", "c", "d")
	hits := make([]VectorHit, len(docs))
	for i, d := range docs {
		hits[i] = VectorHit{Chunk: d, Distance: 0.1 * float64(i+1)}
	}
	r, err := NewHybridRetriever(&fakeVectorIndex{hits: hits}, &fakeKeywordIndex{docs: docs})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results, err := r.Retrieve(context.Background(), fmt.Sprintf("query %d", n), 3)
			assert.NoError(t, err)
			assert.Len(t, results, 3)
		}(i)
	}
	wg.Wait()
}

// --- AddDocuments -----------------------------------------------------------

func TestAddDocuments_ForwardsToBothBackends(t *testing.T) {
	vec := &fakeVectorIndex{}
	kw := &fakeKeywordIndex{}
	r, err := NewHybridRetriever(vec, kw)
	require.NoError(t, err)

	docs := chunks("one", "two")
	require.NoError(t, r.AddDocuments(context.Background(), docs))

	require.Len(t, vec.added, 1)
	require.Len(t, kw.added, 1)
	assert.Equal(t, docs, vec.added[0])
	assert.Equal(t, docs, kw.added[0])
}

func TestAddDocuments_EmptyIsNoop(t *testing.T) {
	vec := &fakeVectorIndex{}
	kw := &fakeKeywordIndex{}
	r, err := NewHybridRetriever(vec, kw)
	require.NoError(t, err)

	require.NoError(t, r.AddDocuments(context.Background(), nil))
	assert.Empty(t, vec.added)
	assert.Empty(t, kw.added)
}

func TestAddDocuments_BackendErrorWrapped(t *testing.T) {
	boom := errors.New("disk full")
	r, err := NewHybridRetriever(&fakeVectorIndex{err: boom}, &fakeKeywordIndex{})
	require.NoError(t, err)

	err = r.AddDocuments(context.Background(), chunks("doc"))
	require.Error(t, err)
	assert.Equal(t, alloyerr.ErrCodeBackendUnavailable, alloyerr.CodeOf(err))
	assert.ErrorIs(t, err, boom)
}
