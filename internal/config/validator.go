package config

import (
	"fmt"
	"mime"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration. Credentials are not checked
// here; commands that talk to providers check them when building clients.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateGeneration(&cfg.Generation)
	v.validateEmbedding(&cfg.Embedding)
	v.validateRetrieval(&cfg.Retrieval)
	v.validateGuardrails(&cfg.Guardrails)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(cfg.Format) {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.RequestTimeout < 0 {
		v.addError("server.request_timeout", cfg.RequestTimeout, "must not be negative")
	}
	if cfg.MaxUploadMB < 1 {
		v.addError("server.max_upload_mb", cfg.MaxUploadMB, "must be at least 1")
	}
}

func (v *Validator) validateGeneration(cfg *GenerationConfig) {
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		v.addError("generation.base_url", cfg.BaseURL, "must be an absolute URL")
	}
	if cfg.Model == "" {
		v.addError("generation.model", cfg.Model, "must not be empty")
	}
	if cfg.MaxAttempts < 1 {
		v.addError("generation.max_attempts", cfg.MaxAttempts, "must be at least 1")
	}
	if cfg.RequestsPerMinute < 0 {
		v.addError("generation.requests_per_minute", cfg.RequestsPerMinute, "must not be negative")
	}
}

func (v *Validator) validateEmbedding(cfg *EmbeddingConfig) {
	if cfg.Dimensions < 1 {
		v.addError("embedding.dimensions", cfg.Dimensions, "must be positive")
	}
}

func (v *Validator) validateRetrieval(cfg *RetrievalConfig) {
	if cfg.TopK < 1 {
		v.addError("retrieval.top_k", cfg.TopK, "must be at least 1")
	}
	switch cfg.Backend {
	case BackendSQLite:
		if cfg.SQLite.Path == "" {
			v.addError("retrieval.sqlite.path", cfg.SQLite.Path, "required for the sqlite backend")
		}
	case BackendPinecone:
		if cfg.Pinecone.Host == "" {
			v.addError("retrieval.pinecone.host", cfg.Pinecone.Host, "required for the pinecone backend")
		}
	default:
		v.addError("retrieval.backend", cfg.Backend, "must be one of: sqlite, pinecone")
	}
}

func (v *Validator) validateGuardrails(cfg *GuardrailsConfig) {
	if cfg.MaxQueryLength < 1 {
		v.addError("guardrails.max_query_length", cfg.MaxQueryLength, "must be positive")
	}
	if cfg.MaxDocumentMB < 1 {
		v.addError("guardrails.max_document_mb", cfg.MaxDocumentMB, "must be positive")
	}
	for i, t := range cfg.AllowedTypes {
		if _, _, err := mime.ParseMediaType(t); err != nil {
			v.addError(fmt.Sprintf("guardrails.allowed_types[%d]", i), t, "not a media type")
		}
	}
}

// ValidateConfig is a convenience function to validate configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
