// Package storage persists documents, their pages and their chunks.
package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/shoel/internal/config"
	"github.com/hyperjump/shoel/internal/models"
)

// Storage is the document store. Lookups of unknown documents or chunks
// return models.ErrNotFound; list operations return an empty slice instead.
// Returned values are copies and may be modified by the caller.
type Storage interface {
	// PutDocument inserts or replaces a document and its pages.
	PutDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// ListDocuments returns summaries (no pages) ordered by creation time.
	// A limit <= 0 returns everything after offset.
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	MarkStatus(ctx context.Context, id string, status models.DocumentStatus, reason string) error
	// DeleteDocument removes the document, its pages and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// PutChunks inserts chunks in one transaction. An existing chunk id fails
	// the whole call with models.ErrDuplicateKey.
	PutChunks(ctx context.Context, chunks []*models.Chunk) error
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	// GetChunksByDocumentID returns chunks ordered by chunk index.
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}

// New opens the backend named in cfg.
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemoryStorage(), nil
	case config.BackendSQLite:
		s, err := NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, sqlite)", cfg.Backend)
	}
}
