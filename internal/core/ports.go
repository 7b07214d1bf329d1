package core

import (
	"context"
)

// =============================================================================
// Agent Port
// =============================================================================

// Agent is the single contract every analysis unit implements.
type Agent interface {
	// Run maps a shared context to a structured, typed output.
	Run(ctx context.Context, actx *AgentContext) (*AgentOutput, error)
}

// AgentFunc adapts an ordinary function to the Agent interface.
type AgentFunc func(ctx context.Context, actx *AgentContext) (*AgentOutput, error)

// Run calls f(ctx, actx).
func (f AgentFunc) Run(ctx context.Context, actx *AgentContext) (*AgentOutput, error) {
	return f(ctx, actx)
}

// =============================================================================
// Generation Port
// =============================================================================

// Role tags a message in a generation request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of a generation request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions configures one generation call. Zero values fall back to
// the client's defaults.
type GenerateOptions struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Generator performs a single blocking text-generation round trip.
type Generator interface {
	Complete(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}

// =============================================================================
// Retrieval Port
// =============================================================================

// Filter selects matches by exact metadata values (e.g. {"type": "financial"}).
type Filter map[string]string

// MatchMetadata carries the provenance of a retrieved passage.
type MatchMetadata struct {
	Text   string            `json:"text"`
	Source string            `json:"source"`
	Page   int               `json:"page,omitempty"` // 0 when unknown
	Name   string            `json:"name,omitempty"`
	Type   DocumentType      `json:"type,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Match is one scored retrieval hit.
type Match struct {
	ID       string        `json:"id"`
	Score    float64       `json:"score"`
	Metadata MatchMetadata `json:"metadata"`
}

// Retriever returns passages ordered by descending score.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter Filter) ([]Match, error)
}

// Indexer gets admitted documents into the retrieval index.
type Indexer interface {
	Upsert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, documentID string) error
}

// Index is a retrieval backend that can both store and search documents.
type Index interface {
	Retriever
	Indexer
	Close() error
}
