// Package embedding maps text to fixed-length dense vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shoel/internal/config"
	"github.com/hyperjump/shoel/internal/models"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text. EmbedBatch preserves input order
// and every vector has Dimensions() elements.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
	Close() error
}

// EmbedWithRetry embeds texts, retrying the whole batch once on failure.
// A second failure is returned wrapped in models.ErrEmbeddingFailed. Context
// cancellation is returned as is and never retried.
func EmbedWithRetry(ctx context.Context, e Embedder, texts []string, logger *zap.Logger) ([][]float32, error) {
	vecs, err := embedChecked(ctx, e, texts)
	if err == nil {
		return vecs, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if logger != nil {
		logger.Warn("embedding batch failed, retrying once",
			zap.String("embedder", e.Name()), zap.Int("batch", len(texts)), zap.Error(err))
	}
	vecs, err = embedChecked(ctx, e, texts)
	if err == nil {
		return vecs, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, fmt.Errorf("%w: %s: %v", models.ErrEmbeddingFailed, e.Name(), err)
}

func embedChecked(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != e.Dimensions() {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), e.Dimensions())
		}
	}
	return vecs, nil
}

// New builds the embedder selected by cfg.Provider ("hash", "onnx" or "openai"),
// wrapped in an LRU cache unless cfg.CacheSize is negative.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var base Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		base = NewHashEmbedder(cfg.Dimensions)
	case "onnx":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		base = e
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKeyEnv:         cfg.APIKeyEnv,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger)
		if err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize < 0 {
		return base, nil
	}
	return NewCachedEmbedder(base, cfg.CacheSize), nil
}
