package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	p := filepath.Join(t.TempDir(), "imgvec.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
vision:
  endpoint: https://vision.example.com
  api_key: from-file
  timeout: 10s
retry:
  max_attempts: 3
  min_wait: 1s
  max_wait: 2s
index:
  backend: memory
  dimensions: 2
store:
  path: out.jsonl
  on_corrupt: skip
`), 0o644))

	t.Setenv("IMGVEC_VISION_API_KEY", "from-env")
	t.Setenv("IMGVEC_INDEX_DIMENSIONS", "4")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "https://vision.example.com", cfg.Vision.Endpoint)
	assert.Equal(t, "from-env", cfg.Vision.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Vision.Timeout)
	assert.Equal(t, "latest", cfg.Vision.ModelVersion)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.MinWait)
	assert.Equal(t, 4, cfg.Index.Dimensions)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, "image-vectors", cfg.Index.Name)
	assert.Equal(t, "skip", cfg.Store.OnCorrupt)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateVision())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidEnv(t *testing.T) {
	p := filepath.Join(t.TempDir(), "imgvec.yaml")
	require.NoError(t, os.WriteFile(p, []byte("{}\n"), 0o644))
	t.Setenv("IMGVEC_INDEX_DIMENSIONS", "many")

	_, err := Load(p)
	assert.Error(t, err)
}

func TestValidate_ListsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Index.Name = ""
	cfg.Index.Dimensions = 0
	cfg.Index.Backend = "pinecone"
	cfg.Store.Path = ""
	cfg.Store.OnCorrupt = "ignore"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"index.name", "index.dimensions", "index.backend", "store.path", "store.on_corrupt"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateVision(t *testing.T) {
	err := Default().ValidateVision()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMGVEC_VISION_ENDPOINT")
	assert.Contains(t, err.Error(), "IMGVEC_VISION_API_KEY")
}
