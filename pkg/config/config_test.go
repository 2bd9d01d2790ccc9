package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFrom(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Indexing.ChunkSize)
	assert.Equal(t, 50, cfg.Indexing.ChunkOverlap)
	assert.Equal(t, 50, cfg.Indexing.EmbedBatchSize)
	assert.Equal(t, 100, cfg.Indexing.UpsertBatchSize)
	assert.Equal(t, "fail", cfg.Indexing.PartialFailure)
	assert.Equal(t, "sequential", cfg.Indexing.ChunkIDs)
	assert.Equal(t, 15, cfg.Cache.TTLMinutes)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 10, cfg.Search.DefaultTopK)
	assert.Equal(t, "milvus", cfg.Vector.Provider)
	assert.False(t, cfg.NotionConfigured())
}

func TestLoadFrom_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
indexing:
  chunkSize: 800
  pruneOrphans: true
vector:
  provider: memory
notion:
  databases:
    knowledge: db-knowledge
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("AIA_NOTION_TOKEN", "secret_abc")
	t.Setenv("AIA_ADMIN_PASSWORD", "hunter2")

	cfg, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Indexing.ChunkSize)
	assert.True(t, cfg.Indexing.PruneOrphans)
	assert.Equal(t, "memory", cfg.Vector.Provider)
	assert.Equal(t, "secret_abc", cfg.Notion.Token)
	assert.Equal(t, "hunter2", cfg.Admin.Password)
	assert.True(t, cfg.NotionConfigured())
}

func TestLoadFrom_MissingExplicitFile(t *testing.T) {
	_, err := LoadFrom(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadFrom(viper.New(), "")
	require.NoError(t, err)

	bad := *cfg
	bad.Indexing.ChunkSize = 0
	bad.Indexing.ChunkOverlap = -1
	bad.Vector.Provider = "pinecone"
	bad.Cache.Backend = "lru"
	bad.Cache.MaxEntries = 0

	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunkSize")
	assert.Contains(t, err.Error(), "chunkOverlap")
	assert.Contains(t, err.Error(), "vector.provider")
	assert.Contains(t, err.Error(), "maxEntries")
}
