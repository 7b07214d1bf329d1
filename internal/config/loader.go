package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/guardrail"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance so CLI
// flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "DILIGENCE",
		getenv:    os.Getenv,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ConfigFileUsed returns the file the configuration was read from, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (DILIGENCE_*)
// 3. Project config (.diligence.yaml in current directory)
// 4. User config (~/.config/diligence/config.yaml)
// 5. Defaults
//
// OPENAI_API_KEY and PINECONE_API_KEY fill the API keys when nothing else does.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".diligence")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "diligence"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = l.getenv("OPENAI_API_KEY")
	}
	if cfg.Retrieval.Pinecone.APIKey == "" {
		cfg.Retrieval.Pinecone.APIKey = l.getenv("PINECONE_API_KEY")
	}
	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("server.host", "127.0.0.1")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.enable_cors", true)
	l.v.SetDefault("server.cors_origins", []string{"*"})
	l.v.SetDefault("server.request_timeout", "5m")
	l.v.SetDefault("server.max_upload_mb", 50)

	l.v.SetDefault("generation.base_url", "https://api.openai.com/v1")
	l.v.SetDefault("generation.model", "gpt-4o-mini")
	l.v.SetDefault("generation.timeout", "2m")
	l.v.SetDefault("generation.max_attempts", 1)
	l.v.SetDefault("generation.requests_per_minute", 0)

	l.v.SetDefault("embedding.model", "text-embedding-3-small")
	l.v.SetDefault("embedding.dimensions", 1024)

	l.v.SetDefault("retrieval.backend", BackendSQLite)
	l.v.SetDefault("retrieval.top_k", 5)
	l.v.SetDefault("retrieval.sqlite.path", ".diligence/index.db")
	l.v.SetDefault("retrieval.sqlite.chunk_size", 2000)
	l.v.SetDefault("retrieval.pinecone.namespace", "")

	l.v.SetDefault("guardrails.max_query_length", guardrail.DefaultMaxQueryLength)
	l.v.SetDefault("guardrails.max_document_mb", guardrail.DefaultMaxDocumentMB)
	l.v.SetDefault("guardrails.keywords", guardrail.DefaultKeywords)
	l.v.SetDefault("guardrails.allowed_types", guardrail.DefaultAllowedTypes)

	l.v.SetDefault("pipeline.parallel_agents", true)
	l.v.SetDefault("pipeline.cleanup_documents", false)
	l.v.SetDefault("pipeline.timeout", "5m")
}

// Policy converts the guardrail settings into a guardrail.Policy.
func (g GuardrailsConfig) Policy() guardrail.Policy {
	p := guardrail.DefaultPolicy()
	if g.MaxQueryLength > 0 {
		p.MaxQueryLength = g.MaxQueryLength
	}
	if g.MaxDocumentMB > 0 {
		p.MaxDocumentMB = g.MaxDocumentMB
	}
	if len(g.Keywords) > 0 {
		p.Keywords = append([]string(nil), g.Keywords...)
	}
	if len(g.AllowedTypes) > 0 {
		p.AllowedTypes = append([]string(nil), g.AllowedTypes...)
	}
	return p
}
