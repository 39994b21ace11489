package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "imglens.sqlite", cfg.Database)
	assert.Equal(t, "http://localhost:8800", cfg.Server.URL)
	assert.Equal(t, 25, cfg.Search.Limit)
	assert.Equal(t, "cosine", cfg.Search.Metric)
	assert.Equal(t, 0.05, cfg.SimIndex.MaxDist)
	assert.Equal(t, 10, cfg.SimIndex.TopK)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imglens.yaml")
	raw := `
database: /data/pets.sqlite
simindex:
  top_k: 5
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/pets.sqlite", cfg.Database)
	assert.Equal(t, 5, cfg.SimIndex.TopK)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched keys keep their defaults.
	assert.Equal(t, 0.05, cfg.SimIndex.MaxDist)
	assert.Equal(t, 25, cfg.Search.Limit)
	assert.Equal(t, "clip-vit-b32", cfg.Server.Model)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imglens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "config: parse")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imglens.yaml")
	cfg := Default()
	cfg.Database = "/data/pets.sqlite"
	cfg.Server.Batch = true
	cfg.Server.BatchSize = 8
	cfg.SimIndex.MaxDist = 0.1

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
