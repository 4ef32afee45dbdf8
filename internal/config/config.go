// Package config loads Alloy configuration. Values are applied in order of
// increasing precedence: hardcoded defaults, a project config file
// (.alloy.yaml), then ALLOY_* environment variables. The final configuration
// is validated before use so bad weights or paths fail at startup, not at
// query time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	alloyerr "github.com/alloysearch/alloy/internal/errors"
	"github.com/alloysearch/alloy/internal/retrieval"
)

// Config is the complete Alloy configuration.
type Config struct {
	Search     SearchConfig             `yaml:"search"`
	Synonyms   []retrieval.SynonymEntry `yaml:"synonyms"`
	Embeddings EmbeddingsConfig         `yaml:"embeddings"`
	Paths      PathsConfig              `yaml:"paths"`
	Logging    LoggingConfig            `yaml:"logging"`
}

// SearchConfig tunes the hybrid retrieval pipeline.
type SearchConfig struct {
	// VectorWeight and KeywordWeight are the fusion weights. They are
	// rescaled to sum to 1 at retriever construction, so any non-negative,
	// not-both-zero pair is accepted here. Pointers so an explicit zero in
	// the config file (pure-vector or pure-keyword retrieval) is
	// distinguishable from an absent key.
	VectorWeight  *float64 `yaml:"vector_weight"`
	KeywordWeight *float64 `yaml:"keyword_weight"`

	// TopK is the default result-count bound.
	TopK int `yaml:"top_k"`

	// KeywordLimit bounds the keyword backend's ranked output.
	KeywordLimit int `yaml:"keyword_limit"`

	// Advanced enables query expansion and term-overlap reranking.
	Advanced bool `yaml:"advanced"`

	// PartialResults tolerates expansion-variant failures in advanced mode.
	PartialResults *bool `yaml:"partial_results"`

	// VariantParallelism bounds concurrent variant pipelines in advanced mode.
	VariantParallelism int `yaml:"variant_parallelism"`
}

// EmbeddingsConfig tunes the embedding layer.
type EmbeddingsConfig struct {
	// CacheSize is the embedding LRU cache capacity.
	CacheSize int `yaml:"cache_size"`
}

// PathsConfig locates the on-disk indexes. An empty DataDir keeps everything
// in memory.
type PathsConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// ConfigFileName is the project config file Alloy looks for.
const ConfigFileName = ".alloy.yaml"

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	partial := true
	vectorWeight, keywordWeight := 0.7, 0.3
	return &Config{
		Search: SearchConfig{
			VectorWeight:       &vectorWeight,
			KeywordWeight:      &keywordWeight,
			TopK:               retrieval.DefaultTopK,
			KeywordLimit:       50,
			Advanced:           false,
			PartialResults:     &partial,
			VariantParallelism: retrieval.DefaultVariantParallelism,
		},
		Synonyms: retrieval.DefaultSynonymTable(),
		Embeddings: EmbeddingsConfig{
			CacheSize: 1000,
		},
		Paths: PathsConfig{
			DataDir: "",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// Load builds the effective configuration for a project directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile merges .alloy.yaml or .alloy.yml from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ConfigFileName, ".alloy.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	// No config file is fine, defaults apply.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return alloyerr.New(alloyerr.ErrCodeConfigNotFound,
			fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return alloyerr.New(alloyerr.ErrCodeConfigInvalid,
			fmt.Sprintf("parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges set values from other into c. The fusion weights are
// merged on presence, not value, so an explicit zero overrides the default.
func (c *Config) mergeWith(other *Config) {
	if other.Search.VectorWeight != nil {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.KeywordWeight != nil {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.KeywordLimit != 0 {
		c.Search.KeywordLimit = other.Search.KeywordLimit
	}
	if other.Search.Advanced {
		c.Search.Advanced = true
	}
	if other.Search.PartialResults != nil {
		c.Search.PartialResults = other.Search.PartialResults
	}
	if other.Search.VariantParallelism != 0 {
		c.Search.VariantParallelism = other.Search.VariantParallelism
	}

	if len(other.Synonyms) > 0 {
		c.Synonyms = other.Synonyms
	}

	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies ALLOY_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ALLOY_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			c.Search.VectorWeight = &w
		}
	}
	if v := os.Getenv("ALLOY_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			c.Search.KeywordWeight = &w
		}
	}
	if v := os.Getenv("ALLOY_TOP_K"); v != "" {
		if k, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && k > 0 {
			c.Search.TopK = k
		}
	}
	if v := os.Getenv("ALLOY_ADVANCED"); v != "" {
		c.Search.Advanced = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("ALLOY_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("ALLOY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects configurations that cannot produce a working retriever.
func (c *Config) Validate() error {
	if c.VectorWeight() < 0 || c.KeywordWeight() < 0 {
		return alloyerr.New(alloyerr.ErrCodeWeightsInvalid,
			"fusion weights must be non-negative", nil)
	}
	if c.VectorWeight() == 0 && c.KeywordWeight() == 0 {
		return alloyerr.New(alloyerr.ErrCodeWeightsInvalid,
			"fusion weights must not both be zero", nil).
			WithSuggestion("set search.vector_weight or search.keyword_weight above zero")
	}
	if c.Search.TopK <= 0 {
		return alloyerr.ConfigError("search.top_k must be positive", nil)
	}
	if c.Search.KeywordLimit <= 0 {
		return alloyerr.ConfigError("search.keyword_limit must be positive", nil)
	}
	if c.Search.VariantParallelism <= 0 {
		return alloyerr.ConfigError("search.variant_parallelism must be positive", nil)
	}
	if c.Embeddings.CacheSize <= 0 {
		return alloyerr.ConfigError("embeddings.cache_size must be positive", nil)
	}
	for i, entry := range c.Synonyms {
		if strings.TrimSpace(entry.Term) == "" {
			return alloyerr.ConfigError(
				fmt.Sprintf("synonyms[%d]: term must not be empty", i), nil)
		}
	}
	return nil
}

// VectorWeight returns the effective vector fusion weight.
func (c *Config) VectorWeight() float64 {
	if c.Search.VectorWeight == nil {
		return 0
	}
	return *c.Search.VectorWeight
}

// KeywordWeight returns the effective keyword fusion weight.
func (c *Config) KeywordWeight() float64 {
	if c.Search.KeywordWeight == nil {
		return 0
	}
	return *c.Search.KeywordWeight
}

// FusionWeights returns the normalized fusion weights.
func (c *Config) FusionWeights() (retrieval.FusionWeights, error) {
	return retrieval.NewFusionWeights(c.VectorWeight(), c.KeywordWeight())
}

// SynonymTable returns the configured synonym table.
func (c *Config) SynonymTable() retrieval.SynonymTable {
	return retrieval.SynonymTable(c.Synonyms)
}

// AllowPartialResults reports the effective partial-results policy.
func (c *Config) AllowPartialResults() bool {
	if c.Search.PartialResults == nil {
		return true
	}
	return *c.Search.PartialResults
}

// InMemory reports whether indexes live in memory only.
func (c *Config) InMemory() bool {
	return c.Paths.DataDir == ""
}

// ChunkStorePath returns the SQLite chunk store location.
func (c *Config) ChunkStorePath() string {
	return filepath.Join(c.Paths.DataDir, "chunks.db")
}

// KeywordIndexPath returns the Bleve index location.
func (c *Config) KeywordIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "keyword.bleve")
}

// VectorIndexPath returns the HNSW graph location.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "vectors.hnsw")
}
