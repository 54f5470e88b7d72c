package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the default number of texts per embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single request to keep memory bounded.
	MaxBatchSize = 256

	// DefaultDimensions matches nomic-embed-text, the default model.
	DefaultDimensions = 768

	// DefaultWarmTimeout is the per-request timeout once the model is loaded.
	DefaultWarmTimeout = 60 * time.Second

	// DefaultColdTimeout covers the first request, which may trigger a
	// model load inside Ollama.
	DefaultColdTimeout = 180 * time.Second

	// ModelUnloadThreshold is how long Ollama keeps an idle model warm.
	ModelUnloadThreshold = 5 * time.Minute
)

// Embedder generates vector embeddings for chunk and query text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one pass.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks whether the embedder is ready to serve.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
