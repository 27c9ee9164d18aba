package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, `
core:
  parallel_limit: 4
  timeout: 2m
graph:
  uri: bolt://graph.internal:7687
  username: neo4j
  password: secret
retrieval:
  top_k: 5
  vector_weight: 0.6
  graph_weight: 0.3
  keyword_weight: 0.1
`)

	loader := NewLoader(NewValidator())
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Core.ParallelLimit)
	assert.Equal(t, 2*time.Minute, cfg.Core.Timeout)
	assert.Equal(t, "bolt://graph.internal:7687", cfg.Graph.URI)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	// Unset fields keep defaults.
	assert.Equal(t, 384, cfg.Vector.Dimensions)
	assert.Equal(t, "local", cfg.Embedder.Type)
}

func TestLoadEnvInterpolation(t *testing.T) {
	t.Setenv("NG_TEST_GRAPH_PASSWORD", "s3cr3t")

	path := writeConfigFile(t, `
graph:
  uri: bolt://localhost:7687
  password: ${NG_TEST_GRAPH_PASSWORD}
`)

	loader := NewLoader(NewValidator())
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cr3t", cfg.Graph.Password)
}

func TestLoadUnsetEnvVarLeftIntact(t *testing.T) {
	path := writeConfigFile(t, `
graph:
  uri: bolt://localhost:7687
  password: ${NG_TEST_DOES_NOT_EXIST}
`)

	loader := NewLoader(NewValidator())
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "${NG_TEST_DOES_NOT_EXIST}", cfg.Graph.Password)
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader(NewValidator())
	_, err := loader.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWithDefaults(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		loader := NewLoader(NewValidator())
		cfg, err := loader.LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Retrieval.TopK, cfg.Retrieval.TopK)
	})

	t.Run("existing file is loaded", func(t *testing.T) {
		path := writeConfigFile(t, `
graph:
  uri: bolt://other:7687
`)
		loader := NewLoader(NewValidator())
		cfg, err := loader.LoadWithDefaults(path)
		require.NoError(t, err)
		assert.Equal(t, "bolt://other:7687", cfg.Graph.URI)
	})
}

func TestValidatorRejectsBadConfig(t *testing.T) {
	t.Run("weights must sum to one", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Retrieval.VectorWeight = 0.9
		cfg.Retrieval.GraphWeight = 0.9
		cfg.Retrieval.KeywordWeight = 0.0
		err := NewValidator().Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weights")
	})

	t.Run("auth enabled without secret", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Auth.Enabled = true
		cfg.Auth.JWTSecret = ""
		err := NewValidator().Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt_secret")
	})

	t.Run("unknown default provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.DefaultProvider = "missing"
		err := NewValidator().Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_provider")
	})

	t.Run("nil config", func(t *testing.T) {
		assert.Error(t, NewValidator().Validate(nil))
	})

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, NewValidator().Validate(DefaultConfig()))
	})
}
