package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(0)
	defer func() { _ = e.Close() }()

	assert.Equal(t, DefaultDimensions, e.Dimensions())

	a, err := e.Embed(context.Background(), "Jan Jansen of Utrecht")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Jan Jansen of Utrecht")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimensions)
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	e := NewStaticEmbedder(64)
	vec, err := e.Embed(context.Background(), "some text")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestStaticEmbedder_OCRVariantsOverlap(t *testing.T) {
	e := NewStaticEmbedder(256)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Jansen")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Jansen.") // trailing OCR noise
	require.NoError(t, err)
	c, err := e.Embed(ctx, "Rotterdam")
	require.NoError(t, err)

	assert.Greater(t, dot(a, b), dot(a, c),
		"noisy variant must be closer than an unrelated word")
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestStaticEmbedder_EmptyText(t *testing.T) {
	e := NewStaticEmbedder(32)
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 32), vec)
}

func TestStaticEmbedder_Closed(t *testing.T) {
	e := NewStaticEmbedder(32)
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func newFakeOllama(t *testing.T, dims int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaModelListResponse{
			Models: []ollamaModelInfo{{Name: "nomic-embed-text:latest"}},
		})
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[i%dims] = 1
			resp.Embeddings[i] = vec
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_ResolvesModelAndDims(t *testing.T) {
	srv := newFakeOllama(t, 8, nil)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 8, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	srv := newFakeOllama(t, 8, nil)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       srv.URL,
		Model:      "nomic-embed-text",
		Dimensions: 8,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, make([]float32, 8), vecs[1], "empty text gets a zero vector without an API call")
	assert.NotEqual(t, make([]float32, 8), vecs[0])
}

func TestOllamaEmbedder_UnknownModel(t *testing.T) {
	srv := newFakeOllama(t, 8, nil)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "no-such-model",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-model")
}

func TestCachedEmbedder_AvoidsRepeatCalls(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeOllama(t, 8, &calls)

	inner, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       srv.URL,
		Model:      "nomic-embed-text",
		Dimensions: 8,
	})
	require.NoError(t, err)

	e := NewCachedEmbedder(inner, 10)
	defer func() { _ = e.Close() }()

	ctx := context.Background()
	first, err := e.Embed(ctx, "Jan Jansen")
	require.NoError(t, err)
	after := calls.Load()

	second, err := e.Embed(ctx, "Jan Jansen")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, after, calls.Load(), "second identical query must hit the cache")
	assert.Equal(t, 1, e.Len())
}

func TestCachedEmbedder_BatchMixedHits(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeOllama(t, 8, &calls)

	inner, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       srv.URL,
		Model:      "nomic-embed-text",
		Dimensions: 8,
	})
	require.NoError(t, err)
	e := NewCachedEmbedder(inner, 10)

	ctx := context.Background()
	cached, err := e.Embed(ctx, "alpha")
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, cached, vecs[0])
	assert.Equal(t, 2, e.Len())
}
