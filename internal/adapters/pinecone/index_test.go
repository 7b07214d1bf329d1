package pinecone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
)

type fakeEmbedder struct {
	inputs []string
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func newTestIndex(t *testing.T, emb Embedder, h http.HandlerFunc) *Index {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	x, err := New(Config{Host: srv.URL, APIKey: "pcsk_test", Namespace: "deals"}, emb)
	require.NoError(t, err)
	return x
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, &fakeEmbedder{})
	assert.Error(t, err)
	_, err = New(Config{Host: "http://x", APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestUpsert(t *testing.T) {
	var got upsertRequest
	emb := &fakeEmbedder{}
	x := newTestIndex(t, emb, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vectors/upsert", r.URL.Path)
		assert.Equal(t, "pcsk_test", r.Header.Get("Api-Key"))
		assert.Equal(t, apiVersion, r.Header.Get("X-Pinecone-API-Version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"upsertedCount":1}`))
	})

	doc := core.Document{
		ID:         "doc_1",
		Name:       "financial_report.pdf",
		Type:       core.DocumentTypeFinancial,
		Content:    "EBITDA 15%",
		UploadedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, x.Upsert(context.Background(), doc))

	require.Len(t, got.Vectors, 1)
	v := got.Vectors[0]
	assert.Equal(t, "deals", got.Namespace)
	assert.Equal(t, "doc_1", v.ID)
	assert.Equal(t, []float32{1, 0, 0}, v.Values)
	assert.Equal(t, "financial", v.Metadata["type"])
	assert.Equal(t, "financial_report.pdf", v.Metadata["source"])
	assert.Equal(t, "EBITDA 15%", v.Metadata["text"])
	assert.Equal(t, "2026-01-02T03:04:05Z", v.Metadata["uploadedAt"])
	assert.Equal(t, []string{"EBITDA 15%"}, emb.inputs)
}

func TestUpsert_EmbedError(t *testing.T) {
	x := newTestIndex(t, &fakeEmbedder{err: errors.New("boom")}, func(http.ResponseWriter, *http.Request) {
		t.Error("index should not be called")
	})
	err := x.Upsert(context.Background(), core.Document{ID: "d", Name: "n"})
	assert.ErrorContains(t, err, "boom")
}

func TestSearch(t *testing.T) {
	var got queryRequest
	x := newTestIndex(t, &fakeEmbedder{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"matches":[
			{"id":"doc_1","score":0.91,"metadata":{"text":"EBITDA 15%","source":"fin.pdf","name":"fin.pdf","type":"financial","page":4,"uploadedAt":"2026-01-02T03:04:05Z"}},
			{"id":"doc_2","score":0.5,"metadata":{"text":"debt"}}
		]}`))
	})

	matches, err := x.Search(context.Background(), "q", 5, core.Filter{"type": "financial"})
	require.NoError(t, err)

	assert.Equal(t, 5, got.TopK)
	assert.True(t, got.IncludeMetadata)
	assert.Equal(t, map[string]any{"type": map[string]any{"$eq": "financial"}}, got.Filter)

	require.Len(t, matches, 2)
	assert.Equal(t, "doc_1", matches[0].ID)
	assert.InDelta(t, 0.91, matches[0].Score, 1e-9)
	assert.Equal(t, core.MatchMetadata{
		Text: "EBITDA 15%", Source: "fin.pdf", Name: "fin.pdf", Type: core.DocumentTypeFinancial, Page: 4,
		Extra: map[string]string{"uploadedAt": "2026-01-02T03:04:05Z"},
	}, matches[0].Metadata)
	assert.Equal(t, 0, matches[1].Metadata.Page)
	assert.Nil(t, matches[1].Metadata.Extra)
}

func TestSearch_ProviderError(t *testing.T) {
	x := newTestIndex(t, &fakeEmbedder{}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := x.Search(context.Background(), "q", 5, nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeIndexFailed, core.GetCode(err))
}

func TestDelete(t *testing.T) {
	var got deleteRequest
	x := newTestIndex(t, &fakeEmbedder{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vectors/delete", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	})
	require.NoError(t, x.Delete(context.Background(), "doc_9"))
	assert.Equal(t, []string{"doc_9"}, got.IDs)
	assert.NoError(t, x.Close())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "é" is two bytes; cutting through it drops the partial rune.
	assert.Equal(t, "a", truncate("aé", 2))
	long := strings.Repeat("x", maxMetadataText+10)
	assert.Len(t, truncate(long, maxMetadataText), maxMetadataText)
}
