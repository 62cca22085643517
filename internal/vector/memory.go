package vector

import (
	"context"
	"fmt"
	"sync"
)

// MemoryIndex is an in-memory vector index using an exact linear scan.
type MemoryIndex struct {
	s  store
	mu sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{s: newStore(dimensions)}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add inserts entries; nothing is inserted if any entry is rejected.
func (m *MemoryIndex) Add(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.s.validate(entries); err != nil {
		return err
	}
	m.s.add(entries)
	return nil
}

// Search scores every entry against the normalized query and returns the top k.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	q, err := normalizedQuery(query, m.s.dimensions)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.s.entries) == 0 {
		return []*VectorResult{}, nil
	}
	cands := make([]scored, len(m.s.entries))
	for i := range m.s.entries {
		cands[i] = m.s.score(i, q)
	}
	return m.s.results(topK(cands, k)), nil
}

// RemoveDocument removes all entries of docID.
func (m *MemoryIndex) RemoveDocument(ctx context.Context, docID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.removeDocument(docID), nil
}

// Contains reports whether chunkID is indexed.
func (m *MemoryIndex) Contains(chunkID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.s.pos[chunkID]
	return ok
}

// EntryChecksum returns the text checksum stored with chunkID.
func (m *MemoryIndex) EntryChecksum(chunkID string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.checksum(chunkID)
}

// Documents returns the number of entries per document.
func (m *MemoryIndex) Documents() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.documents()
}

// Save persists the index to path. An empty path is a no-op.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return writeSnapshot(path, m.s.dimensions, m.s.entries)
}

// Load replaces the in-memory contents with the snapshot at path. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	entries, err := readSnapshot(path, m.s.dimensions)
	if err != nil || entries == nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.replace(entries)
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.s.entries)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.s.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
