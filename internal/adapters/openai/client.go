// Package openai implements core.Generator and the embedding call against an
// OpenAI-compatible REST API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/adapters/rest"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/resilience"
)

// Defaults applied when options leave a field at its zero value.
const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultModel          = "gpt-4o-mini"
	DefaultTemperature    = 0.2
	DefaultMaxTokens      = 2000
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultDimensions     = 1024
)

// Config configures the client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	EmbeddingModel    string
	Dimensions        int
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerMinute int
	Logger            *logging.Logger
	HTTP              *http.Client
}

// Client talks to the chat completions and embeddings endpoints.
type Client struct {
	model          string
	embeddingModel string
	dimensions     int
	chat           *rest.Client
	embed          *rest.Client
}

var _ core.Generator = (*Client)(nil)

// New creates a client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "generation API key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	log := cfg.Logger.With("component", "openai")

	// Chat and embedding calls share one rate budget.
	limiter := resilience.NewRateLimiter(resilience.PerMinute(cfg.RequestsPerMinute))
	retry := resilience.NewRetryPolicy(resilience.WithMaxAttempts(cfg.MaxAttempts))
	transport := func(code string) *rest.Client {
		return rest.New(rest.Config{
			BaseURL: cfg.BaseURL,
			Headers: map[string]string{"Authorization": "Bearer " + cfg.APIKey},
			Timeout: cfg.Timeout,
			Code:    code,
			Retry:   retry,
			Limiter: limiter,
			Logger:  log,
			HTTP:    cfg.HTTP,
		})
	}

	return &Client{
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		dimensions:     cfg.Dimensions,
		chat:           transport(core.CodeGenerationFailed),
		embed:          transport(core.CodeRetrievalFailed),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends one non-streaming chat completion and returns the first
// choice's text (empty when the provider returns no choices).
func (c *Client) Complete(ctx context.Context, messages []core.Message, opts core.GenerateOptions) (string, error) {
	req := chatRequest{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxOutputTokens,
		Messages:    make([]chatMessage, len(messages)),
	}
	if req.Model == "" {
		req.Model = c.model
	}
	if req.Temperature == 0 {
		req.Temperature = DefaultTemperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	for i, m := range messages {
		req.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}

	var resp chatResponse
	if err := c.chat.Do(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	err := c.embed.Do(ctx, http.MethodPost, "/embeddings", embeddingRequest{
		Model:      c.embeddingModel,
		Input:      text,
		Dimensions: c.dimensions,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, core.ErrNetwork(core.CodeRetrievalFailed, "embedding response contained no vector")
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the configured embedding size.
func (c *Client) Dimensions() int { return c.dimensions }
