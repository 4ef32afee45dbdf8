package cmd

import (
	"os"

	"github.com/alloysearch/alloy/internal/backend"
	"github.com/alloysearch/alloy/internal/config"
	"github.com/alloysearch/alloy/internal/embed"
	alloyerr "github.com/alloysearch/alloy/internal/errors"
	"github.com/alloysearch/alloy/internal/retrieval"
)

// engine bundles the wired retrieval stack for one CLI invocation: chunk
// store, both indexes, the embedder, and the retriever chosen by config.
type engine struct {
	cfg       *config.Config
	store     *backend.SQLiteChunkStore
	keyword   *backend.BleveKeywordIndex
	vector    *backend.HNSWVectorIndex
	embedder  embed.Embedder
	basic     *retrieval.HybridRetriever
	retriever retrieval.Retriever
	lock      *backend.IndexLock
}

// openEngine loads config from dir and wires the full stack. Persistent
// setups take the cross-process index lock for the life of the engine.
func openEngine(dir string) (*engine, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg}
	if err := e.wire(); err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func (e *engine) wire() error {
	storePath := backend.MemoryDSN
	keywordPath := ""
	if !e.cfg.InMemory() {
		e.lock = backend.NewIndexLock(e.cfg.Paths.DataDir)
		acquired, err := e.lock.TryLock()
		if err != nil {
			return err
		}
		if !acquired {
			return alloyerr.New(alloyerr.ErrCodeStoreFailed,
				"another alloy process holds the index lock", nil).
				WithDetail("lock_file", e.lock.Path()).
				WithSuggestion("wait for the other process to finish and retry")
		}
		storePath = e.cfg.ChunkStorePath()
		keywordPath = e.cfg.KeywordIndexPath()
	}

	store, err := backend.NewSQLiteChunkStore(storePath)
	if err != nil {
		return err
	}
	e.store = store

	e.embedder = embed.NewCachedEmbedder(embed.NewStaticEmbedder(), e.cfg.Embeddings.CacheSize)

	vector, err := backend.NewHNSWVectorIndex(e.embedder, store, backend.VectorConfig{})
	if err != nil {
		return err
	}
	if !e.cfg.InMemory() {
		if _, statErr := os.Stat(e.cfg.VectorIndexPath()); statErr == nil {
			if loadErr := vector.Load(e.cfg.VectorIndexPath()); loadErr != nil {
				return alloyerr.InternalError("load vector index", loadErr)
			}
		}
	}
	e.vector = vector

	keyword, err := backend.NewBleveKeywordIndex(keywordPath, store,
		backend.WithKeywordLimit(e.cfg.Search.KeywordLimit))
	if err != nil {
		return err
	}
	e.keyword = keyword

	weights, err := e.cfg.FusionWeights()
	if err != nil {
		return err
	}

	basic, err := retrieval.NewHybridRetriever(vector, keyword,
		retrieval.WithWeights(weights),
		retrieval.WithTopK(e.cfg.Search.TopK))
	if err != nil {
		return err
	}
	e.basic = basic
	e.retriever = basic

	if e.cfg.Search.Advanced {
		advanced, err := retrieval.NewAdvancedHybridRetriever(basic,
			retrieval.WithSynonyms(e.cfg.SynonymTable()),
			retrieval.WithVariantParallelism(e.cfg.Search.VariantParallelism),
			retrieval.WithPartialResults(e.cfg.AllowPartialResults()))
		if err != nil {
			return err
		}
		e.retriever = advanced
	}

	return nil
}

// saveVector persists the HNSW graph for persistent setups. The chunk store
// and the Bleve index persist themselves.
func (e *engine) saveVector() error {
	if e.cfg.InMemory() {
		return nil
	}
	return e.vector.Save(e.cfg.VectorIndexPath())
}

// close releases all engine resources in reverse wiring order.
func (e *engine) close() {
	if e.keyword != nil {
		_ = e.keyword.Close()
	}
	if e.embedder != nil {
		_ = e.embedder.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.lock != nil {
		_ = e.lock.Unlock()
	}
}
