package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alloyerr "github.com/alloysearch/alloy/internal/errors"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644))
}

func weight(v float64) *float64 {
	return &v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.InDelta(t, 0.7, cfg.VectorWeight(), 1e-12)
	assert.InDelta(t, 0.3, cfg.KeywordWeight(), 1e-12)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.False(t, cfg.Search.Advanced)
	assert.True(t, cfg.AllowPartialResults())
	assert.True(t, cfg.InMemory())
	assert.NotEmpty(t, cfg.Synonyms, "the default synonym table must be present")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
search:
  vector_weight: 0.6
  keyword_weight: 0.4
  top_k: 25
  advanced: true
paths:
  data_dir: /tmp/alloy-data
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.InDelta(t, 0.6, cfg.VectorWeight(), 1e-12)
	assert.InDelta(t, 0.4, cfg.KeywordWeight(), 1e-12)
	assert.Equal(t, 25, cfg.Search.TopK)
	assert.True(t, cfg.Search.Advanced)
	assert.Equal(t, 50, cfg.Search.KeywordLimit, "unset fields keep their defaults")
	assert.False(t, cfg.InMemory())
	assert.Equal(t, filepath.Join("/tmp/alloy-data", "chunks.db"), cfg.ChunkStorePath())
}

func TestLoad_CustomSynonymsReplaceDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
synonyms:
  - term: revenue
    synonyms: [income, turnover]
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Synonyms, 1)
	assert.Equal(t, "revenue", cfg.Synonyms[0].Term)
	assert.Equal(t, []string{"income", "turnover"}, cfg.Synonyms[0].Synonyms)
}

func TestLoad_PartialResultsFalseSurvivesMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
search:
  partial_results: false
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, cfg.AllowPartialResults())
}

func TestLoad_ZeroWeightFromFileRespected(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
search:
  vector_weight: 0
  keyword_weight: 1
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Zero(t, cfg.VectorWeight(), "an explicit zero must not fall back to the default")
	assert.InDelta(t, 1.0, cfg.KeywordWeight(), 1e-12)

	w, err := cfg.FusionWeights()
	require.NoError(t, err)
	assert.Zero(t, w.Vector)
	assert.InDelta(t, 1.0, w.Keyword, 1e-12)
}

func TestLoad_ZeroWeightFromEnvRespected(t *testing.T) {
	t.Setenv("ALLOY_KEYWORD_WEIGHT", "0")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, cfg.VectorWeight(), 1e-12)
	assert.Zero(t, cfg.KeywordWeight())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
search:
  vector_weight: 0.6
  keyword_weight: 0.4
`)
	t.Setenv("ALLOY_VECTOR_WEIGHT", "0.9")
	t.Setenv("ALLOY_KEYWORD_WEIGHT", "0.1")
	t.Setenv("ALLOY_TOP_K", "3")
	t.Setenv("ALLOY_ADVANCED", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, cfg.VectorWeight(), 1e-12)
	assert.InDelta(t, 0.1, cfg.KeywordWeight(), 1e-12)
	assert.Equal(t, 3, cfg.Search.TopK)
	assert.True(t, cfg.Search.Advanced)
}

func TestLoad_InvalidEnvValuesIgnored(t *testing.T) {
	t.Setenv("ALLOY_VECTOR_WEIGHT", "not a number")
	t.Setenv("ALLOY_TOP_K", "-5")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, cfg.VectorWeight(), 1e-12)
	assert.Equal(t, 10, cfg.Search.TopK)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "search: [not a mapping")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, alloyerr.ErrCodeConfigInvalid, alloyerr.CodeOf(err))
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"negative weight", func(c *Config) { c.Search.VectorWeight = weight(-1) }, alloyerr.ErrCodeWeightsInvalid},
		{"both weights zero", func(c *Config) { c.Search.VectorWeight = weight(0); c.Search.KeywordWeight = weight(0) }, alloyerr.ErrCodeWeightsInvalid},
		{"zero top_k", func(c *Config) { c.Search.TopK = 0 }, alloyerr.ErrCodeConfigInvalid},
		{"zero keyword limit", func(c *Config) { c.Search.KeywordLimit = 0 }, alloyerr.ErrCodeConfigInvalid},
		{"zero parallelism", func(c *Config) { c.Search.VariantParallelism = 0 }, alloyerr.ErrCodeConfigInvalid},
		{"zero cache size", func(c *Config) { c.Embeddings.CacheSize = 0 }, alloyerr.ErrCodeConfigInvalid},
		{"empty synonym term", func(c *Config) { c.Synonyms[0].Term = "  " }, alloyerr.ErrCodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, alloyerr.CodeOf(err))
		})
	}
}

func TestFusionWeights_Normalized(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.VectorWeight = weight(2)
	cfg.Search.KeywordWeight = weight(2)

	w, err := cfg.FusionWeights()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, w.Vector, 1e-12)
	assert.InDelta(t, 0.5, w.Keyword, 1e-12)
}
