// Package pinecone implements core.Index on a Pinecone serverless index via
// its data-plane REST API. Each admitted document is stored as one vector.
package pinecone

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/adapters/rest"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/resilience"
)

const (
	apiVersion = "2024-07"

	// maxMetadataText keeps the stored text under Pinecone's 40KB metadata cap.
	maxMetadataText = 32 << 10
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures the index.
type Config struct {
	// Host is the index host, e.g. https://my-index-abc123.svc.us-east-1.pinecone.io.
	Host        string
	APIKey      string
	Namespace   string
	Timeout     time.Duration
	MaxAttempts int
	Logger      *logging.Logger
	HTTP        *http.Client
}

// Index stores and queries document vectors.
type Index struct {
	api       *rest.Client
	embedder  Embedder
	namespace string
	log       *logging.Logger
	now       func() time.Time
}

var _ core.Index = (*Index)(nil)

// New creates an index client.
func New(cfg Config, embedder Embedder) (*Index, error) {
	if cfg.Host == "" || cfg.APIKey == "" {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "pinecone host and API key are required")
	}
	if embedder == nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "pinecone index needs an embedder")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	log := cfg.Logger.With("component", "pinecone")
	return &Index{
		api: rest.New(rest.Config{
			BaseURL: cfg.Host,
			Headers: map[string]string{
				"Api-Key":                cfg.APIKey,
				"X-Pinecone-API-Version": apiVersion,
			},
			Timeout: cfg.Timeout,
			Code:    core.CodeIndexFailed,
			Retry:   resilience.NewRetryPolicy(resilience.WithMaxAttempts(cfg.MaxAttempts)),
			Logger:  log,
			HTTP:    cfg.HTTP,
		}),
		embedder:  embedder,
		namespace: cfg.Namespace,
		log:       log,
		now:       time.Now,
	}, nil
}

type vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

// Upsert embeds the document text and stores it with its provenance.
func (x *Index) Upsert(ctx context.Context, doc core.Document) error {
	text := truncate(doc.Content, maxMetadataText)
	values, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", doc.Name, err)
	}
	uploaded := doc.UploadedAt
	if uploaded.IsZero() {
		uploaded = x.now()
	}
	req := upsertRequest{
		Namespace: x.namespace,
		Vectors: []vector{{
			ID:     doc.ID,
			Values: values,
			Metadata: map[string]any{
				"name":       doc.Name,
				"type":       string(doc.Type),
				"source":     doc.Name,
				"text":       text,
				"uploadedAt": uploaded.UTC().Format(time.RFC3339),
			},
		}},
	}
	if err := x.api.Do(ctx, http.MethodPost, "/vectors/upsert", req, nil); err != nil {
		return fmt.Errorf("upserting %s: %w", doc.ID, err)
	}
	x.log.Debug("document indexed", "document_id", doc.ID, "type", doc.Type)
	return nil
}

type queryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	IncludeMetadata bool           `json:"includeMetadata"`
	Filter          map[string]any `json:"filter,omitempty"`
	Namespace       string         `json:"namespace,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

// Search embeds the query and returns the closest documents matching filter.
func (x *Index) Search(ctx context.Context, query string, topK int, filter core.Filter) ([]core.Match, error) {
	values, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	req := queryRequest{
		Vector:          values,
		TopK:            topK,
		IncludeMetadata: true,
		Namespace:       x.namespace,
	}
	if len(filter) > 0 {
		req.Filter = make(map[string]any, len(filter))
		for k, v := range filter {
			req.Filter[k] = map[string]string{"$eq": v}
		}
	}

	var resp queryResponse
	if err := x.api.Do(ctx, http.MethodPost, "/query", req, &resp); err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	matches := make([]core.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, core.Match{ID: m.ID, Score: m.Score, Metadata: toMetadata(m.Metadata)})
	}
	return matches, nil
}

type deleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

// Delete removes a document's vector.
func (x *Index) Delete(ctx context.Context, documentID string) error {
	req := deleteRequest{IDs: []string{documentID}, Namespace: x.namespace}
	if err := x.api.Do(ctx, http.MethodPost, "/vectors/delete", req, nil); err != nil {
		return fmt.Errorf("deleting %s: %w", documentID, err)
	}
	return nil
}

// Close is a no-op; the REST client holds no long-lived resources.
func (x *Index) Close() error { return nil }

func toMetadata(raw map[string]any) core.MatchMetadata {
	md := core.MatchMetadata{Extra: map[string]string{}}
	for k, v := range raw {
		switch k {
		case "text":
			md.Text, _ = v.(string)
		case "source":
			md.Source, _ = v.(string)
		case "name":
			md.Name, _ = v.(string)
		case "type":
			s, _ := v.(string)
			md.Type = core.DocumentType(s)
		case "page":
			if f, ok := v.(float64); ok {
				md.Page = int(f)
			}
		default:
			md.Extra[k] = fmt.Sprint(v)
		}
	}
	if len(md.Extra) == 0 {
		md.Extra = nil
	}
	return md
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	s = s[:maxBytes]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
