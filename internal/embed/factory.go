package embed

import (
	"context"
	"log/slog"
	"time"

	"github.com/stamzoek/stamzoek/internal/config"
)

// New builds the embedder stack from configuration: the configured
// provider wrapped in an LRU cache. When the provider is Ollama and it
// cannot be reached, the hash fallback takes over so ingest and search
// keep working offline; the degradation is logged and visible in
// result annotations.
func New(ctx context.Context, cfg config.EmbeddingsConfig, logger *slog.Logger) (Embedder, error) {
	var inner Embedder

	switch cfg.Provider {
	case "hash":
		inner = NewStaticEmbedder(cfg.Dimensions)
	default:
		ollama, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Warn("embedding model unavailable, using hash fallback",
				"model", cfg.Model,
				"host", cfg.OllamaHost,
				"error", err)
			inner = NewStaticEmbedder(cfg.Dimensions)
		} else {
			inner = ollama
		}
	}

	logger.Info("embedder ready",
		"model", inner.ModelName(),
		"dimensions", inner.Dimensions())
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
