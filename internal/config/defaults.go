package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// DefaultConfigYAML is the file written by `diligence init`.
const DefaultConfigYAML = `# diligence-ai configuration
#
# Values not specified here use built-in defaults. Every key can be
# overridden with a DILIGENCE_ environment variable, e.g.
# DILIGENCE_RETRIEVAL_BACKEND=pinecone. API keys fall back to
# OPENAI_API_KEY and PINECONE_API_KEY.

log:
  level: info        # debug, info, warn, error
  format: auto       # auto, text, json

server:
  host: 127.0.0.1
  port: 8080
  enable_cors: true
  cors_origins: ["*"]
  request_timeout: 5m
  max_upload_mb: 50

generation:
  base_url: https://api.openai.com/v1
  model: gpt-4o-mini
  timeout: 2m
  max_attempts: 1          # 1 disables retries
  requests_per_minute: 0   # 0 disables client-side rate limiting

embedding:
  model: text-embedding-3-small
  dimensions: 1024

retrieval:
  backend: sqlite    # sqlite (local, no embeddings) or pinecone
  top_k: 5
  sqlite:
    path: .diligence/index.db
    chunk_size: 2000
  pinecone:
    host: ""         # https://<index>-<project>.svc.<region>.pinecone.io
    namespace: ""

guardrails:
  max_query_length: 1000
  max_document_mb: 10
  allowed_types:
    - application/pdf
    - text/plain
    - application/msword
    - application/vnd.openxmlformats-officedocument.wordprocessingml.document

pipeline:
  parallel_agents: true
  cleanup_documents: false
  timeout: 5m
`

// WriteDefault writes DefaultConfigYAML to path atomically. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := renameio.WriteFile(path, []byte(DefaultConfigYAML), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
