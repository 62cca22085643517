//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"unsafe"

	"github.com/hyperjump/shoel/internal/models"
	"github.com/hyperjump/shoel/pkg/utils"
)

// FAISSIndex stores vectors in a FAISS IndexFlatIP. FAISS labels are assigned
// sequentially, so label order is insertion order. Removal only drops the
// label mapping; removed vectors stay in FAISS and are filtered from results.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	labels     map[string]int64 // chunk id -> FAISS label
	chunks     map[int64]faissChunk
	nextLabel  int64
	mu         sync.RWMutex
}

type faissChunk struct {
	ID    string
	DocID string
	Sum   uint64
}

// NewFAISSIndex creates a FAISS inner-product index with the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var index *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dimensions)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{
		index:      (*C.FaissIndex)(index),
		dimensions: dimensions,
		labels:     make(map[string]int64),
		chunks:     make(map[int64]faissChunk),
	}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add validates all entries, then adds their normalized vectors in one FAISS call.
func (f *FAISSIndex) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	flat := make([]float32, len(entries)*f.dimensions)
	for i, e := range entries {
		if len(e.Vector) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(e.Vector), f.dimensions)
		}
		if _, ok := f.labels[e.ChunkID]; ok || seen[e.ChunkID] {
			return fmt.Errorf("%w: chunk %s", models.ErrDuplicateKey, e.ChunkID)
		}
		seen[e.ChunkID] = true
		row := flat[i*f.dimensions : (i+1)*f.dimensions]
		copy(row, e.Vector)
		utils.NormalizeL2(row)
	}
	if ret := C.faiss_Index_add(f.index, C.idx_t(len(entries)), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	for _, e := range entries {
		f.labels[e.ChunkID] = f.nextLabel
		f.chunks[f.nextLabel] = faissChunk{ID: e.ChunkID, DocID: e.DocumentID, Sum: e.Checksum}
		f.nextLabel++
	}
	return nil
}

// Search asks FAISS for k plus the number of tombstoned labels so that k live hits survive filtering.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	q, err := normalizedQuery(query, f.dimensions)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	ntotal := int(C.faiss_Index_ntotal(f.index))
	if k <= 0 || len(f.labels) == 0 {
		return []*VectorResult{}, nil
	}
	want := k + (ntotal - len(f.labels))
	if want > ntotal {
		want = ntotal
	}
	distances := make([]float32, want)
	labels := make([]int64, want)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&q[0])),
		C.idx_t(want),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	type hit struct {
		label int64
		score float64
	}
	hits := make([]hit, 0, want)
	for i, label := range labels {
		if _, ok := f.chunks[label]; label >= 0 && ok {
			hits = append(hits, hit{label: label, score: float64(distances[i])})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].label < hits[j].label
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	results := make([]*VectorResult, len(hits))
	for i, h := range hits {
		c := f.chunks[h.label]
		results[i] = &VectorResult{ID: c.ID, DocumentID: c.DocID, Score: h.score}
	}
	return results, nil
}

// RemoveDocument drops the label mappings of docID.
func (f *FAISSIndex) RemoveDocument(ctx context.Context, docID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for label, c := range f.chunks {
		if c.DocID == docID {
			delete(f.chunks, label)
			delete(f.labels, c.ID)
			removed++
		}
	}
	return removed, nil
}

// Contains reports whether chunkID is live in the index.
func (f *FAISSIndex) Contains(chunkID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.labels[chunkID]
	return ok
}

// EntryChecksum returns the text checksum stored with chunkID.
func (f *FAISSIndex) EntryChecksum(chunkID string) (uint64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	label, ok := f.labels[chunkID]
	if !ok {
		return 0, false
	}
	return f.chunks[label].Sum, true
}

// Documents returns the number of live entries per document.
func (f *FAISSIndex) Documents() map[string]int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]int)
	for _, c := range f.chunks {
		out[c.DocID]++
	}
	return out
}

type faissMapping struct {
	Chunks    map[int64]faissChunk
	NextLabel int64
}

// Save writes the FAISS index to path+".faiss" and the label mapping to path+".idmap".
func (f *FAISSIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	cPath := C.CString(path + ".faiss")
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	mapFile, err := os.Create(path + ".idmap")
	if err != nil {
		return fmt.Errorf("create id map file: %w", err)
	}
	defer mapFile.Close()
	if err := gob.NewEncoder(mapFile).Encode(faissMapping{Chunks: f.chunks, NextLabel: f.nextLabel}); err != nil {
		return fmt.Errorf("encode id map: %w", err)
	}
	return nil
}

// Load reads both files written by Save. Missing files leave the index unchanged.
func (f *FAISSIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	faissPath, mapPath := path+".faiss", path+".idmap"
	if _, err := os.Stat(faissPath); os.IsNotExist(err) {
		return nil
	}
	mapFile, err := os.Open(mapPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s has no id map", ErrSnapshotMismatch, faissPath)
		}
		return fmt.Errorf("open id map file: %w", err)
	}
	defer mapFile.Close()
	var mapping faissMapping
	if err := gob.NewDecoder(mapFile).Decode(&mapping); err != nil {
		return fmt.Errorf("decode id map: %w", err)
	}

	cPath := C.CString(faissPath)
	defer C.free(unsafe.Pointer(cPath))
	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	if int(C.faiss_Index_d(loaded)) != f.dimensions {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: FAISS file has a different dimension", ErrSnapshotMismatch)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	f.chunks = mapping.Chunks
	f.nextLabel = mapping.NextLabel
	f.labels = make(map[string]int64, len(f.chunks))
	for label, c := range f.chunks {
		f.labels[c.ID] = label
	}
	return nil
}

// Size returns the number of live vectors.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.labels)
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
