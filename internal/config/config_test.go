package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TOP_K", "7")
	t.Setenv("SEARCH_TIMEOUT", "2s")
	t.Setenv("QDRANT_USE_TLS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.App.JWTSecret)
	assert.Equal(t, 7, cfg.Index.TopK)
	assert.Equal(t, 2*time.Second, cfg.Index.Timeout)
	assert.True(t, cfg.Index.QdrantTLS)
	assert.Equal(t, "key", cfg.Embedder.GeminiAPIKey)
	assert.Equal(t, "key", cfg.Generator.GeminiAPIKey)
	assert.Equal(t, "vdpo_documents", cfg.Index.Collection)
	assert.Equal(t, "gemini-2.5-flash", cfg.Generator.Model)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  jwt_secret: from-file
  session_ttl: 1h
index:
  collection: policies
  top_k: 3
embedder:
  provider: ollama
  model: all-minilm
generator:
  provider: ollama
  model: llama3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("PRIVACYX_CONFIG", path)
	t.Setenv("TOP_K", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.App.JWTSecret)
	assert.Equal(t, time.Hour, cfg.App.SessionTTL)
	assert.Equal(t, "policies", cfg.Index.Collection)
	assert.Equal(t, 4, cfg.Index.TopK, "env wins over file")
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
}

func TestLoad_BadNumber(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TOP_K", "five")

	_, err := Load()
	assert.ErrorContains(t, err, "TOP_K")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.App.JWTSecret = "" },
			wantErr: "JWT_SECRET",
		},
		{
			name:    "unknown session store",
			mutate:  func(c *Config) { c.Store.Sessions = "etcd" },
			wantErr: "unknown session store",
		},
		{
			name:    "zero top k",
			mutate:  func(c *Config) { c.Index.TopK = 0 },
			wantErr: "top_k",
		},
		{
			name:    "pgvector without dsn",
			mutate:  func(c *Config) { c.Index.Provider = "pgvector" },
			wantErr: "DB_URL",
		},
		{
			name:    "gemini without key",
			mutate:  func(c *Config) { c.Generator.GeminiAPIKey = "" },
			wantErr: "gemini llm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.App.JWTSecret = "secret"
			cfg.Embedder.GeminiAPIKey = "key"
			cfg.Generator.GeminiAPIKey = "key"
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
