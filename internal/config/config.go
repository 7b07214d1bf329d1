package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Generation GenerationConfig `mapstructure:"generation"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	EnableCORS     bool          `mapstructure:"enable_cors"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxUploadMB caps the whole multipart request body.
	MaxUploadMB int `mapstructure:"max_upload_mb"`
}

// GenerationConfig configures the chat completion provider.
type GenerationConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// EmbeddingConfig configures the embedding model used by the vector backend.
type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// RetrievalConfig selects and configures the retrieval backend.
type RetrievalConfig struct {
	Backend  string         `mapstructure:"backend"`
	TopK     int            `mapstructure:"top_k"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Pinecone PineconeConfig `mapstructure:"pinecone"`
}

// SQLiteConfig configures the local index.
type SQLiteConfig struct {
	Path      string `mapstructure:"path"`
	ChunkSize int    `mapstructure:"chunk_size"`
}

// PineconeConfig configures the hosted vector index.
type PineconeConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
}

// GuardrailsConfig configures the trust-boundary checks.
type GuardrailsConfig struct {
	MaxQueryLength int      `mapstructure:"max_query_length"`
	MaxDocumentMB  int      `mapstructure:"max_document_mb"`
	Keywords       []string `mapstructure:"keywords"`
	AllowedTypes   []string `mapstructure:"allowed_types"`
}

// PipelineConfig configures a single analysis run.
type PipelineConfig struct {
	ParallelAgents   bool          `mapstructure:"parallel_agents"`
	CleanupDocuments bool          `mapstructure:"cleanup_documents"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// Retrieval backends.
const (
	BackendSQLite   = "sqlite"
	BackendPinecone = "pinecone"
)
