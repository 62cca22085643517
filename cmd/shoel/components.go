package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/hyperjump/shoel/internal/answer"
	"github.com/hyperjump/shoel/internal/config"
	"github.com/hyperjump/shoel/internal/embedding"
	"github.com/hyperjump/shoel/internal/extract"
	"github.com/hyperjump/shoel/internal/indexer"
	"github.com/hyperjump/shoel/internal/keyword"
	"github.com/hyperjump/shoel/internal/llm"
	"github.com/hyperjump/shoel/internal/rag"
	"github.com/hyperjump/shoel/internal/search"
	"github.com/hyperjump/shoel/internal/session"
	"github.com/hyperjump/shoel/internal/storage"
	"github.com/hyperjump/shoel/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.VectorIndex
	KeywordIndex keyword.KeywordIndex
	Indexer      *indexer.Indexer
	Engine       *search.Engine
	Providers    *llm.Fallback
	Sessions     *session.Manager
	Service      *rag.Service

	vectorPath string
	logger     *zap.Logger
}

// SaveVectors writes the vector index snapshot when the store is durable.
func (c *Components) SaveVectors() {
	if c.vectorPath == "" || c.VectorIndex == nil {
		return
	}
	if err := c.VectorIndex.Save(c.vectorPath); err != nil {
		c.logger.Warn("vector index save failed", zap.String("path", c.vectorPath), zap.Error(err))
		return
	}
	c.logger.Debug("vector index saved", zap.String("path", c.vectorPath), zap.Int("size", c.VectorIndex.Size()))
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{logger: logger}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	vecOpts := []vector.Option{
		vector.WithIVF(cfg.Vector.IVFThreshold, cfg.Vector.IVFProbes),
		vector.WithLogger(logger),
	}
	vectorIndex, err := vector.NewVectorIndex(cfg.Vector.IndexType, embedder.Dimensions(), vecOpts...)
	if err != nil {
		// FAISS needs the cgo build tag; the exact index is always available
		if cfg.Vector.IndexType != string(vector.IndexTypeMemory) && cfg.Vector.IndexType != "" {
			logger.Warn("failed to create vector index, falling back to memory",
				zap.String("requested_type", cfg.Vector.IndexType), zap.Error(err))
			vectorIndex, err = vector.NewVectorIndex(string(vector.IndexTypeMemory), embedder.Dimensions())
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
	}
	c.VectorIndex = vectorIndex
	// a snapshot is only meaningful next to a store that survives restarts
	if cfg.Storage.Backend == config.BackendSQLite && cfg.Storage.VectorIndexPath != "" {
		c.vectorPath = cfg.Storage.VectorIndexPath
		if err := vectorIndex.Load(c.vectorPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("vector index snapshot ignored; rebuilding from store",
				zap.String("path", c.vectorPath), zap.Error(err))
		}
	}
	logger.Info("vector index initialized",
		zap.String("type", vectorIndex.Type()),
		zap.Int("size", vectorIndex.Size()),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	if cfg.Retrieval.KeywordEnabled {
		kw, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		c.KeywordIndex = kw
	}

	idx, err := indexer.NewIndexer(store, embedder, vectorIndex, c.KeywordIndex, &cfg.Retrieval, extract.NewExtractor(),
		indexer.WithLogger(logger), indexer.WithBatchSize(cfg.Embedding.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}
	c.Indexer = idx
	rebuilt, err := idx.Rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild indexes: %w", err)
	}
	if rebuilt > 0 {
		logger.Info("vector index rebuilt from store", zap.Int("documents", rebuilt))
	}

	c.Engine = search.NewEngine(store, embedder, vectorIndex, c.KeywordIndex, &cfg.Retrieval, search.WithLogger(logger))

	providers, err := llm.NewFromConfig(ctx, cfg.Generation, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM providers: %w", err)
	}
	c.Providers = providers
	c.Sessions = session.NewManager(session.WithLogger(logger))

	diskPaths := []string{cfg.Storage.VectorIndexPath, cfg.Storage.KeywordIndexPath}
	if cfg.Storage.Backend == config.BackendSQLite {
		diskPaths = append(diskPaths, cfg.Storage.DatabasePath)
	}
	c.Service = rag.NewService(rag.Deps{
		Storage:     store,
		Embedder:    embedder,
		VectorIndex: vectorIndex,
		Indexer:     idx,
		Engine:      c.Engine,
		Composer: answer.NewComposer(providers,
			answer.WithMaxHistory(cfg.Generation.MaxHistoryTurns), answer.WithLogger(logger)),
		Sessions:  c.Sessions,
		Providers: providers,
		DiskPaths: diskPaths,
	}, rag.WithLogger(logger))

	ok = true
	return c, nil
}
