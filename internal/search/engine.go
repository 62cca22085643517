// Package search retrieves the chunks most relevant to a query.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/shoel/internal/config"
	"github.com/hyperjump/shoel/internal/embedding"
	"github.com/hyperjump/shoel/internal/hebrew"
	"github.com/hyperjump/shoel/internal/keyword"
	"github.com/hyperjump/shoel/internal/models"
	"github.com/hyperjump/shoel/internal/storage"
	"github.com/hyperjump/shoel/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// candidateFactor widens the candidate pool of each retriever before fusion and filtering.
const candidateFactor = 3

// Engine embeds queries and searches the vector index, optionally fused with
// keyword scores.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex // nil disables hybrid retrieval
	config       *config.RetrievalConfig
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for retrieval events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine. keywordIndex is used only when
// cfg.KeywordEnabled is set and it is non-nil.
func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	cfg *config.RetrievalConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		storage:     store,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		config:      cfg,
	}
	if cfg.KeywordEnabled {
		e.keywordIndex = keywordIndex
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hybrid reports whether keyword scores are fused into retrieval.
func (e *Engine) Hybrid() bool {
	return e.keywordIndex != nil
}

// TopK resolves a requested top_k: 0 means the configured default, negative
// values are invalid and large values are clamped to the configured maximum.
func (e *Engine) TopK(requested int) (int, error) {
	if requested < 0 {
		return 0, fmt.Errorf("%w: top_k must be >= 1, got %d", models.ErrInvalidRequest, requested)
	}
	k := requested
	if k == 0 {
		k = e.config.DefaultTopK
	}
	if e.config.MaxTopK > 0 && k > e.config.MaxTopK {
		k = e.config.MaxTopK
	}
	if k < 1 {
		k = 1
	}
	return k, nil
}

// Retrieve returns up to topK hits for query, ordered by descending score.
// Only chunks of indexed documents are returned.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) ([]models.RetrievalHit, error) {
	k, err := e.TopK(topK)
	if err != nil {
		return nil, err
	}
	q := hebrew.NormalizeQuery(query)
	if q == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", models.ErrInvalidRequest)
	}

	// over-fetch so hidden documents do not starve the result
	candidates := k * candidateFactor

	var (
		semanticResults []*vector.VectorResult
		keywordResults  []*keyword.KeywordResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecs, err := embedding.EmbedWithRetry(gctx, e.embedder, []string{q}, e.logger)
		if err != nil {
			return err
		}
		results, err := e.vectorIndex.Search(gctx, vecs[0], candidates)
		if err != nil {
			return fmt.Errorf("vector search failed: %w", err)
		}
		semanticResults = results
		return nil
	})
	if e.Hybrid() {
		g.Go(func() error {
			results, err := e.keywordIndex.Search(gctx, q, candidates, &keyword.SearchOptions{FuzzyEnabled: true})
			if err != nil {
				return fmt.Errorf("keyword search failed: %w", err)
			}
			keywordResults = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fused []*FusedResult
	if e.Hybrid() {
		fused = Fuse(NormalizeKeywordScores(keywordResults), semanticResults, e.config.KeywordWeight)
	} else {
		fused = FromSemantic(semanticResults)
	}
	hits, err := e.hydrate(ctx, fused, k)
	if err != nil {
		return nil, err
	}
	if e.logger != nil {
		e.logger.Debug("search retrieved",
			zap.Int("top_k", k), zap.Int("candidates", len(fused)), zap.Int("hits", len(hits)), zap.Bool("hybrid", e.Hybrid()))
	}
	return hits, nil
}

// hydrate loads chunk text and filename for fused results, skipping chunks
// whose document is missing or not indexed, until k hits are collected.
func (e *Engine) hydrate(ctx context.Context, fused []*FusedResult, k int) ([]models.RetrievalHit, error) {
	hits := make([]models.RetrievalHit, 0, min(k, len(fused)))
	docs := make(map[string]*models.Document)
	for _, r := range fused {
		if len(hits) == k {
			break
		}
		doc, ok := docs[r.DocumentID]
		if !ok {
			d, err := e.storage.GetDocument(ctx, r.DocumentID)
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("failed to load document %s: %w", r.DocumentID, err)
			}
			if d != nil && d.Status != models.StatusIndexed {
				d = nil
			}
			docs[r.DocumentID] = d
			doc = d
		}
		if doc == nil {
			continue
		}
		chunk, err := e.storage.GetChunk(ctx, r.ChunkID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load chunk %s: %w", r.ChunkID, err)
		}
		hits = append(hits, models.RetrievalHit{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Filename:   doc.Filename,
			PageNumber: chunk.PageNumber,
			Text:       chunk.Text,
			Score:      r.Score,
		})
	}
	return hits, nil
}
