package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Equal(t, core.CodeInvalidConfig, core.GetCode(err))
}

func TestComplete_Defaults(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"},"finish_reason":"stop"}]}`))
	})

	text, err := c.Complete(context.Background(), []core.Message{{Role: core.RoleUser, Content: "hi"}}, core.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, DefaultTemperature, got.Temperature)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	assert.Equal(t, []chatMessage{{Role: "user", Content: "hi"}}, got.Messages)
}

func TestComplete_Options(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	text, err := c.Complete(context.Background(), nil, core.GenerateOptions{Model: "gpt-4o", Temperature: 0.3, MaxOutputTokens: 2500})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 0.3, got.Temperature)
	assert.Equal(t, 2500, got.MaxTokens)
}

func TestComplete_ProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	})

	_, err := c.Complete(context.Background(), nil, core.GenerateOptions{})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatRateLimit))
	assert.Contains(t, err.Error(), "chat completion")
}

func TestEmbed(t *testing.T) {
	var got embeddingRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	})

	vec, err := c.Embed(context.Background(), "revenue grew")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, DefaultEmbeddingModel, got.Model)
	assert.Equal(t, DefaultDimensions, got.Dimensions)
	assert.Equal(t, "revenue grew", got.Input)
	assert.Equal(t, DefaultDimensions, c.Dimensions())
}

func TestEmbed_EmptyVector(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, core.CodeRetrievalFailed, core.GetCode(err))
}
