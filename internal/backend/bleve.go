package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/alloysearch/alloy/internal/retrieval"
)

// TextAnalyzerName is the name of the custom analyzer: unicode word
// segmentation plus lowercasing, which handles both space-delimited and CJK
// text.
const TextAnalyzerName = "text_analyzer"

// DefaultKeywordLimit bounds the ranked output of one keyword search.
const DefaultKeywordLimit = 50

// BleveKeywordIndex is the BM25 keyword backend. Bleve holds the inverted
// index keyed by chunk ID; result chunks are hydrated from the shared chunk
// store.
type BleveKeywordIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	store ChunkStore
	limit int
	path  string
}

// bleveDocument is what gets indexed per chunk.
type bleveDocument struct {
	Content string `json:"content"`
}

// KeywordOption configures a BleveKeywordIndex.
type KeywordOption func(*BleveKeywordIndex)

// WithKeywordLimit bounds the ranked output size.
func WithKeywordLimit(limit int) KeywordOption {
	return func(b *BleveKeywordIndex) {
		if limit > 0 {
			b.limit = limit
		}
	}
}

// NewBleveKeywordIndex opens (creating if needed) a keyword index at path.
// An empty path creates an in-memory index.
func NewBleveKeywordIndex(path string, store ChunkStore, opts ...KeywordOption) (*BleveKeywordIndex, error) {
	if store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	b := &BleveKeywordIndex{
		index: idx,
		store: store,
		limit: DefaultKeywordLimit,
		path:  path,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// createIndexMapping builds the Bleve mapping with the custom text analyzer
// as default.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = TextAnalyzerName
	return indexMapping, nil
}

// GetRelevantDocuments returns the BM25-ranked chunks for the query,
// best-first, at most the configured limit.
func (b *BleveKeywordIndex) GetRelevantDocuments(ctx context.Context, query string) ([]retrieval.DocumentChunk, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return []retrieval.DocumentChunk{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = b.limit

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}

	chunks, err := b.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate keyword hits: %w", err)
	}
	return chunks, nil
}

// AddDocuments saves the chunks to the shared store and indexes their
// content in one Bleve batch.
func (b *BleveKeywordIndex) AddDocuments(ctx context.Context, chunks []retrieval.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.store.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	batch := b.index.NewBatch()
	for _, chunk := range chunks {
		if err := batch.Index(chunk.ID(), bleveDocument{Content: chunk.Content}); err != nil {
			return fmt.Errorf("index chunk %s: %w", chunk.ID(), err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}

	return nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveKeywordIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Close closes the index. Bleve persists disk-based indexes automatically.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}

// Verify interface implementation at compile time.
var _ retrieval.KeywordIndex = (*BleveKeywordIndex)(nil)
