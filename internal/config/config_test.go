package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.Equal(t, 100, cfg.Embedding.BatchSize)
	assert.Equal(t, 2, cfg.Embedding.MaxRetries)
	assert.Equal(t, 8, cfg.Retrieval.MaxSources)
	assert.Equal(t, 60*time.Second, cfg.Retrieval.MembershipTTL)
	assert.True(t, cfg.Retrieval.FilterEnabled)
	assert.Equal(t, float64(8), cfg.Drive.RequestsPerSecond)
	assert.Equal(t, int64(50)<<20, cfg.Drive.MaxDownloadBytes)
	assert.Empty(t, cfg.Drive.TenantFolders)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MEMBERSHIP_TTL", "5s")
	t.Setenv("RETRIEVAL_FILTER_ENABLED", "false")
	t.Setenv("DRIVE_MIME_FILTER", "application/pdf, text/plain ,")
	t.Setenv("TENANT_FOLDERS", "acme=folder-a, globex=folder-g")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.Retrieval.MembershipTTL)
	assert.False(t, cfg.Retrieval.FilterEnabled)
	assert.Equal(t, []string{"application/pdf", "text/plain"}, cfg.Drive.MimeFilter)
	assert.Equal(t, map[string]string{"acme": "folder-a", "globex": "folder-g"}, cfg.Drive.TenantFolders)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "big")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_SIZE")
}

func TestLoad_InvalidTenantFolders(t *testing.T) {
	t.Setenv("TENANT_FOLDERS", "acme")
	_, err := Load()
	assert.ErrorContains(t, err, "TENANT_FOLDERS")
}

func TestValidate(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LLM_DEFAULT_PROVIDER", "")
	t.Setenv("EMBED_PROVIDER", "")
	t.Setenv("VECTOR_BACKEND", "")
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	cfg.Retrieval.VectorBackend = "memory"
	cfg.LLM.OpenAIKey = "sk-test"
	assert.NoError(t, cfg.Validate())

	cfg.Retrieval.VectorBackend = "milvus"
	assert.Error(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RETRIEVAL_TOP_K=12\nCHUNK_SIZE=900\n"), 0o600))
	t.Setenv("RETRIEVAL_TOP_K", "")
	os.Unsetenv("RETRIEVAL_TOP_K")
	t.Setenv("CHUNK_SIZE", "1500")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, 1500, cfg.Ingest.ChunkSize)
}
