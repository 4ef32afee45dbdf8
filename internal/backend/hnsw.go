package backend

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/alloysearch/alloy/internal/embed"
	alloyerr "github.com/alloysearch/alloy/internal/errors"
	"github.com/alloysearch/alloy/internal/retrieval"
)

// VectorConfig tunes the HNSW graph.
type VectorConfig struct {
	M        int
	EfSearch int
}

// HNSWVectorIndex is the dense backend: chunks are embedded at add time and
// searched by cosine distance over an in-memory HNSW graph. Chunk IDs map to
// internal uint64 keys; result chunks are hydrated from the shared chunk
// store. The graph is memory-resident and persisted explicitly via Save/Load.
type HNSWVectorIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	embedder embed.Embedder
	store    ChunkStore

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// hnswMetadata is the gob-persisted companion to the graph export.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
}

// NewHNSWVectorIndex creates an empty vector index over the given embedder
// and chunk store.
func NewHNSWVectorIndex(embedder embed.Embedder, store ChunkStore, cfg VectorConfig) (*HNSWVectorIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}

	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWVectorIndex{
		graph:    graph,
		embedder: embedder,
		store:    store,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
	}, nil
}

// SimilaritySearchWithScore embeds the query and returns up to k chunks
// ordered nearest-first with their cosine distances.
func (v *HNSWVectorIndex) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]retrieval.VectorHit, error) {
	queryVec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, alloyerr.New(alloyerr.ErrCodeEmbeddingFailed, "embed query", err)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph.Len() == 0 {
		return []retrieval.VectorHit{}, nil
	}

	nodes := v.graph.Search(queryVec, k)

	ids := make([]string, 0, len(nodes))
	distances := make(map[string]float64, len(nodes))
	for _, node := range nodes {
		id, ok := v.keyMap[node.Key]
		if !ok {
			// Lazily-deleted node still present in the graph.
			continue
		}
		ids = append(ids, id)
		distances[id] = float64(v.graph.Distance(queryVec, node.Value))
	}

	chunks, err := v.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate vector hits: %w", err)
	}

	hits := make([]retrieval.VectorHit, 0, len(chunks))
	for _, chunk := range chunks {
		hits = append(hits, retrieval.VectorHit{
			Chunk:    chunk,
			Distance: distances[chunk.ID()],
		})
	}
	return hits, nil
}

// AddDocuments embeds the chunks, saves them to the shared store, and inserts
// them into the graph. Re-adding an existing chunk replaces it via lazy
// deletion: the old graph node is orphaned rather than removed.
func (v *HNSWVectorIndex) AddDocuments(ctx context.Context, chunks []retrieval.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return alloyerr.New(alloyerr.ErrCodeEmbeddingFailed, "embed chunks", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.store.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	for i, chunk := range chunks {
		id := chunk.ID()
		if existingKey, exists := v.idMap[id]; exists {
			delete(v.keyMap, existingKey)
			delete(v.idMap, id)
		}

		key := v.nextKey
		v.nextKey++

		v.graph.Add(hnsw.MakeNode(key, vectors[i]))
		v.idMap[id] = key
		v.keyMap[key] = id
	}

	return nil
}

// Count returns the number of live vectors.
func (v *HNSWVectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// Save persists the graph and its ID mappings to path and path+".meta",
// each written to a temp file and renamed into place.
func (v *HNSWVectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := v.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return v.saveMetadata(path + ".meta")
}

func (v *HNSWVectorIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := hnswMetadata{IDMap: v.idMap, NextKey: v.nextKey}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and ID mappings written by Save.
func (v *HNSWVectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// Import requires an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (v *HNSWVectorIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	v.idMap = meta.IDMap
	v.nextKey = meta.NextKey
	v.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range v.idMap {
		v.keyMap[key] = id
	}
	return nil
}

// Verify interface implementation at compile time.
var _ retrieval.VectorIndex = (*HNSWVectorIndex)(nil)
