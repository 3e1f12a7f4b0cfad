package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestNormalizeVector(t *testing.T) {
	v := normalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := normalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestOllamaProvider_Embed(t *testing.T) {
	var got ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{{3, 4}, {0, 2}},
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "nomic-embed-text")
	vectors, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, got.Input)
	assert.Equal(t, "nomic-embed-text", got.Model)
	require.Len(t, vectors, 2)
	assert.InDelta(t, 0.6, vectors[0][0], 1e-6)
	assert.InDelta(t, 1.0, vectors[1][1], 1e-6)
}

func TestOllamaProvider_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{1}}})
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m").Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestGeminiProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/text-embedding-004:batchEmbedContents", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		var body struct {
			Requests []geminiEmbedRequest `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Requests, 1)
		assert.Equal(t, "models/text-embedding-004", body.Requests[0].Model)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []any{map[string]any{"values": []float32{0.5, 0.5}}},
		})
	}))
	defer srv.Close()

	p := NewGeminiProvider("key", "")
	p.BaseURL = srv.URL
	vectors, err := p.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}}, vectors)
}

func TestCached(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCached(inner, "model-a", time.Minute)

	v1, err := EmbedOne(context.Background(), c, "query")
	require.NoError(t, err)
	v2, err := EmbedOne(context.Background(), c, "query")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)

	_, err = c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRateLimited(t *testing.T) {
	inner := &countingEmbedder{}
	r := NewRateLimited(inner, math.Inf(1), 1)

	for i := 0; i < 5; i++ {
		_, err := r.Embed(context.Background(), []string{"x"})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, inner.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewRateLimited(inner, 0.001, 1)
	_, _ = slow.Embed(context.Background(), []string{"x"})
	_, err := slow.Embed(ctx, []string{"x"})
	assert.Error(t, err)
}
