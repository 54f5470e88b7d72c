package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/stamzoek/stamzoek/internal/signature"
)

// StaticModelName identifies the offline fallback embedder.
const StaticModelName = "static-hash"

const (
	tokenWeight   float32 = 0.7
	trigramWeight float32 = 0.3
)

// StaticEmbedder produces hash-projection embeddings without any model.
// Quality is far below a real embedding model but it keeps the vector
// signal alive when Ollama is unreachable, and it shares the trigram
// tokenization with the lexical signal so OCR variants of a word still
// land near each other. Dimensions match the real model so switching
// back needs no re-index.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a fallback embedder with the given
// dimensionality, defaulting to the Ollama model's dimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed generates a deterministic embedding for a single text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errClosed()
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dims), nil
	}

	vector := make([]float32, e.dims)
	for _, tok := range strings.Fields(strings.ToLower(trimmed)) {
		vector[e.hashToIndex(tok)] += tokenWeight
	}
	for _, gram := range signature.Trigrams(trimmed) {
		vector[e.hashToIndex(gram)] += trigramWeight
	}
	return normalizeVector(vector), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

func (e *StaticEmbedder) hashToIndex(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(e.dims))
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName returns the fallback model identifier.
func (e *StaticEmbedder) ModelName() string { return StaticModelName }

// Available always reports true, the fallback needs no service.
func (e *StaticEmbedder) Available(context.Context) bool { return true }

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
