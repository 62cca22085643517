// Package vector stores passage vectors and answers nearest-neighbour queries by cosine similarity.
package vector

import (
	"context"
	"hash/fnv"
)

// Entry is one passage vector keyed by its chunk id. Checksum identifies the
// text the vector was computed from (see Checksum).
type Entry struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
	Checksum   uint64
}

// Checksum returns the FNV-1a hash of a chunk text.
func Checksum(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

// VectorIndex defines vector storage and similarity search. Vectors are
// L2-normalized on insert and queries on search, so scores are cosine
// similarities. Results are ordered by descending score; equal scores keep
// insertion order.
type VectorIndex interface {
	// Add inserts entries atomically. A chunk id that is already present, or
	// repeated within entries, fails the whole call with models.ErrDuplicateKey.
	Add(ctx context.Context, entries []Entry) error
	// Search returns at most k results; an empty index yields an empty result.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// RemoveDocument drops every entry of docID and reports how many were removed.
	RemoveDocument(ctx context.Context, docID string) (int, error)
	Contains(chunkID string) bool
	// EntryChecksum returns the checksum stored with chunkID.
	EntryChecksum(chunkID string) (uint64, bool)
	// Documents returns the number of entries per document id.
	Documents() map[string]int
	Size() int
	Dimensions() int
	Save(path string) error
	Load(path string) error
	Close() error
	Type() string
}

// VectorResult is a single vector search hit. ID is the chunk id.
type VectorResult struct {
	ID         string
	DocumentID string
	Score      float64
}
