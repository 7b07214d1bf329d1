package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/guardrail"
)

func loadFrom(t *testing.T, yaml string, env map[string]string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	l := NewLoader().WithConfigFile(path).WithEnvPrefix("DILIGENCE_TEST")
	l.getenv = func(k string) string { return env[k] }
	cfg, err := l.Load()
	require.NoError(t, err)
	return cfg
}

func TestLoader_Defaults(t *testing.T) {
	cfg := loadFrom(t, "", nil)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.RequestTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.Generation.Model)
	assert.Equal(t, 1, cfg.Generation.MaxAttempts)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.Equal(t, BackendSQLite, cfg.Retrieval.Backend)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 1000, cfg.Guardrails.MaxQueryLength)
	assert.Equal(t, 10, cfg.Guardrails.MaxDocumentMB)
	assert.True(t, cfg.Pipeline.ParallelAgents)
	assert.False(t, cfg.Pipeline.CleanupDocuments)

	require.NoError(t, ValidateConfig(cfg))
}

func TestLoader_DefaultYAMLIsValid(t *testing.T) {
	cfg := loadFrom(t, DefaultConfigYAML, nil)
	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, guardrail.DefaultAllowedTypes, cfg.Guardrails.AllowedTypes)
}

func TestLoader_FileOverrides(t *testing.T) {
	cfg := loadFrom(t, `
retrieval:
  backend: pinecone
  top_k: 3
  pinecone:
    host: https://idx.pinecone.io
guardrails:
  max_query_length: 200
pipeline:
  parallel_agents: false
`, nil)

	assert.Equal(t, BackendPinecone, cfg.Retrieval.Backend)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 200, cfg.Guardrails.MaxQueryLength)
	assert.False(t, cfg.Pipeline.ParallelAgents)
}

func TestLoader_APIKeyFallbacks(t *testing.T) {
	cfg := loadFrom(t, "", map[string]string{
		"OPENAI_API_KEY":   "sk-env",
		"PINECONE_API_KEY": "pcsk-env",
	})
	assert.Equal(t, "sk-env", cfg.Generation.APIKey)
	assert.Equal(t, "pcsk-env", cfg.Retrieval.Pinecone.APIKey)

	cfg = loadFrom(t, "generation:\n  api_key: sk-file\n", map[string]string{"OPENAI_API_KEY": "sk-env"})
	assert.Equal(t, "sk-file", cfg.Generation.APIKey)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("DILIGENCE_TEST_SERVER_PORT", "9999")
	cfg := loadFrom(t, "", nil)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoader_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0o600))
	_, err := NewLoader().WithConfigFile(path).Load()
	assert.Error(t, err)
}

func TestValidator(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "server.max_upload_mb"},
		{"base url", func(c *Config) { c.Generation.BaseURL = "not a url" }, "generation.base_url"},
		{"model", func(c *Config) { c.Generation.Model = "" }, "generation.model"},
		{"attempts", func(c *Config) { c.Generation.MaxAttempts = 0 }, "generation.max_attempts"},
		{"rpm", func(c *Config) { c.Generation.RequestsPerMinute = -1 }, "generation.requests_per_minute"},
		{"dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }, "embedding.dimensions"},
		{"top k", func(c *Config) { c.Retrieval.TopK = 0 }, "retrieval.top_k"},
		{"backend", func(c *Config) { c.Retrieval.Backend = "redis" }, "retrieval.backend"},
		{"sqlite path", func(c *Config) { c.Retrieval.SQLite.Path = "" }, "retrieval.sqlite.path"},
		{"pinecone host", func(c *Config) { c.Retrieval.Backend = BackendPinecone }, "retrieval.pinecone.host"},
		{"query length", func(c *Config) { c.Guardrails.MaxQueryLength = 0 }, "guardrails.max_query_length"},
		{"document size", func(c *Config) { c.Guardrails.MaxDocumentMB = 0 }, "guardrails.max_document_mb"},
		{"media type", func(c *Config) { c.Guardrails.AllowedTypes = []string{"pdf;;"} }, "guardrails.allowed_types[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadFrom(t, "", nil)
			tt.mutate(cfg)

			v := NewValidator()
			err := v.Validate(cfg)
			require.Error(t, err)
			require.Len(t, v.Errors(), 1)
			assert.Equal(t, tt.field, v.Errors()[0].Field)
			assert.True(t, v.Errors().HasErrors())
		})
	}
}

func TestGuardrailsConfig_Policy(t *testing.T) {
	p := GuardrailsConfig{MaxQueryLength: 50, Keywords: []string{"deal"}}.Policy()
	assert.Equal(t, 50, p.MaxQueryLength)
	assert.Equal(t, guardrail.DefaultMaxDocumentMB, p.MaxDocumentMB)
	assert.Equal(t, []string{"deal"}, p.Keywords)
	assert.Equal(t, guardrail.DefaultAllowedTypes, p.AllowedTypes)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".diligence.yaml")
	require.NoError(t, WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigYAML, string(data))

	assert.Error(t, WriteDefault(path, false))
	assert.NoError(t, WriteDefault(path, true))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".diligence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(DefaultConfigYAML), 0o600))

	reload := func() (*Config, error) { return NewLoader().WithConfigFile(path).Load() }
	changes := make(chan *Config, 4)
	w := NewWatcher(path, reload, func(c *Config) { changes <- c }, nil).WithDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// An invalid config is skipped.
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("guardrails:\n  max_query_length: 42\n"), 0o600))

	select {
	case cfg := <-changes:
		assert.Equal(t, 42, cfg.Guardrails.MaxQueryLength)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	assert.NoError(t, <-done)
}
