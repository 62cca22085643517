package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/shoel/internal/models"
)

// MemoryStorage keeps everything in process memory. It is the default store.
type MemoryStorage struct {
	mu     sync.RWMutex
	docs   map[string]*models.Document
	chunks map[string]*models.Chunk
	byDoc  map[string][]string // document id -> chunk ids in insertion order
	now    func() time.Time
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		docs:   make(map[string]*models.Document),
		chunks: make(map[string]*models.Chunk),
		byDoc:  make(map[string][]string),
		now:    time.Now,
	}
}

func (m *MemoryStorage) PutDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id is required", models.ErrInvalidRequest)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if doc.CreatedAt.IsZero() {
		if old, ok := m.docs[doc.ID]; ok {
			doc.CreatedAt = old.CreatedAt
		} else {
			doc.CreatedAt = now
		}
	}
	doc.UpdatedAt = now
	m.docs[doc.ID] = doc.Clone()
	return nil
}

func (m *MemoryStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	out := doc.Clone()
	out.ChunkCount = len(m.byDoc[id])
	return out, nil
}

func (m *MemoryStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	m.mu.RLock()
	docs := make([]*models.Document, 0, len(m.docs))
	for id, doc := range m.docs {
		s := doc.Summary()
		s.ChunkCount = len(m.byDoc[id])
		docs = append(docs, s)
	}
	m.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return page(docs, offset, limit), nil
}

func (m *MemoryStorage) MarkStatus(ctx context.Context, id string, status models.DocumentStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	doc.Status = status
	doc.Error = reason
	doc.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStorage) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	delete(m.docs, id)
	m.deleteChunksLocked(id)
	return nil
}

func (m *MemoryStorage) PutChunks(ctx context.Context, chunks []*models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if _, ok := m.chunks[c.ID]; ok || seen[c.ID] {
			return fmt.Errorf("%w: chunk %s", models.ErrDuplicateKey, c.ID)
		}
		seen[c.ID] = true
	}
	for _, c := range chunks {
		cp := *c
		m.chunks[c.ID] = &cp
		m.byDoc[c.DocumentID] = append(m.byDoc[c.DocumentID], c.ID)
	}
	return nil
}

func (m *MemoryStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[id]
	if !ok {
		return nil, fmt.Errorf("%w: chunk %s", models.ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byDoc[docID]
	out := make([]*models.Chunk, 0, len(ids))
	for _, id := range ids {
		cp := *m.chunks[id]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *MemoryStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteChunksLocked(docID)
	return nil
}

func (m *MemoryStorage) deleteChunksLocked(docID string) {
	for _, id := range m.byDoc[docID] {
		delete(m.chunks, id)
	}
	delete(m.byDoc, docID)
}

func (m *MemoryStorage) CountDocuments(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.docs)), nil
}

func (m *MemoryStorage) CountChunks(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.chunks)), nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}

func page(docs []*models.Document, offset, limit int) []*models.Document {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return []*models.Document{}
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
