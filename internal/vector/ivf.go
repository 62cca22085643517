package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hyperjump/shoel/pkg/utils"
	"go.uber.org/zap"
)

const kmeansIterations = 5

// IVFIndex is an inverted-file index: entries are partitioned around k-means
// centroids and a query scans only the partitions nearest to it. Below the
// threshold it scans exactly, like MemoryIndex. Partitions are retrained
// whenever the index has doubled since the last training.
type IVFIndex struct {
	s         store
	threshold int
	probes    int
	logger    *zap.Logger

	centroids [][]float32
	lists     [][]string // chunk ids per centroid
	assigned  map[string]int
	trainedAt int

	mu sync.RWMutex
}

// NewIVFIndex creates an IVF index. threshold is the size at which partitioning
// starts; probes is the number of partitions scanned per query.
func NewIVFIndex(dimensions, threshold, probes int) (*IVFIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if threshold <= 0 {
		threshold = 4096
	}
	if probes <= 0 {
		probes = 8
	}
	return &IVFIndex{
		s:         newStore(dimensions),
		threshold: threshold,
		probes:    probes,
		assigned:  make(map[string]int),
	}, nil
}

// Type returns the index type identifier.
func (ix *IVFIndex) Type() string {
	return string(IndexTypeIVF)
}

// Add inserts entries atomically and assigns them to partitions.
func (ix *IVFIndex) Add(ctx context.Context, entries []Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.s.validate(entries); err != nil {
		return err
	}
	added := ix.s.add(entries)
	n := len(ix.s.entries)
	switch {
	case n < ix.threshold:
		ix.dropPartitions()
	case ix.centroids == nil || n >= 2*ix.trainedAt:
		ix.train()
	default:
		for _, p := range added {
			ix.assign(p)
		}
	}
	return nil
}

// Search scans the nearest partitions, widening until at least k candidates are seen.
func (ix *IVFIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	q, err := normalizedQuery(query, ix.s.dimensions)
	if err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if k <= 0 || len(ix.s.entries) == 0 {
		return []*VectorResult{}, nil
	}
	if ix.centroids == nil {
		cands := make([]scored, len(ix.s.entries))
		for i := range ix.s.entries {
			cands[i] = ix.s.score(i, q)
		}
		return ix.s.results(topK(cands, k)), nil
	}
	order := ix.nearestCentroids(q)
	var cands []scored
	for i, c := range order {
		if i >= ix.probes && len(cands) >= k {
			break
		}
		for _, id := range ix.lists[c] {
			cands = append(cands, ix.s.score(ix.s.pos[id], q))
		}
	}
	return ix.s.results(topK(cands, k)), nil
}

// RemoveDocument removes all entries of docID from the store and from their partitions.
func (ix *IVFIndex) RemoveDocument(ctx context.Context, docID string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var gone []string
	for _, e := range ix.s.entries {
		if e.docID == docID {
			gone = append(gone, e.id)
		}
	}
	removed := ix.s.removeDocument(docID)
	if removed == 0 {
		return 0, nil
	}
	if len(ix.s.entries) < ix.threshold {
		ix.dropPartitions()
		return removed, nil
	}
	touched := make(map[int]bool)
	for _, id := range gone {
		touched[ix.assigned[id]] = true
		delete(ix.assigned, id)
	}
	for c := range touched {
		kept := ix.lists[c][:0]
		for _, id := range ix.lists[c] {
			if _, ok := ix.s.pos[id]; ok {
				kept = append(kept, id)
			}
		}
		ix.lists[c] = kept
	}
	return removed, nil
}

// Contains reports whether chunkID is indexed.
func (ix *IVFIndex) Contains(chunkID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.s.pos[chunkID]
	return ok
}

// EntryChecksum returns the text checksum stored with chunkID.
func (ix *IVFIndex) EntryChecksum(chunkID string) (uint64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.s.checksum(chunkID)
}

// Documents returns the number of entries per document.
func (ix *IVFIndex) Documents() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.s.documents()
}

// Size returns the number of vectors in the index.
func (ix *IVFIndex) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.s.entries)
}

// Dimensions returns the vector dimension.
func (ix *IVFIndex) Dimensions() int {
	return ix.s.dimensions
}

// Partitions returns the number of trained partitions (0 while scanning exactly).
func (ix *IVFIndex) Partitions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.centroids)
}

// Save persists the entries; partitions are retrained on Load.
func (ix *IVFIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return writeSnapshot(path, ix.s.dimensions, ix.s.entries)
}

// Load replaces the contents with the snapshot at path and retrains if large enough.
func (ix *IVFIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	entries, err := readSnapshot(path, ix.s.dimensions)
	if err != nil || entries == nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.s.replace(entries)
	ix.dropPartitions()
	if len(ix.s.entries) >= ix.threshold {
		ix.train()
	}
	return nil
}

// Close is a no-op.
func (ix *IVFIndex) Close() error {
	return nil
}

func (ix *IVFIndex) dropPartitions() {
	ix.centroids = nil
	ix.lists = nil
	ix.assigned = make(map[string]int)
	ix.trainedAt = 0
}

// train runs a deterministic k-means with about sqrt(n) centroids seeded from
// evenly spaced entries.
func (ix *IVFIndex) train() {
	n := len(ix.s.entries)
	k := int(math.Sqrt(float64(n)))
	if k < 1 {
		k = 1
	}
	dim := ix.s.dimensions
	centroids := make([][]float32, k)
	for c := range centroids {
		centroids[c] = append([]float32(nil), ix.s.entries[c*n/k].vec...)
	}
	assign := make([]int, n)
	for iter := 0; iter < kmeansIterations; iter++ {
		for i := range ix.s.entries {
			assign[i] = nearest(centroids, ix.s.entries[i].vec)
		}
		sums := make([][]float32, k)
		counts := make([]int, k)
		for i, c := range assign {
			if sums[c] == nil {
				sums[c] = make([]float32, dim)
			}
			for j, x := range ix.s.entries[i].vec {
				sums[c][j] += x
			}
			counts[c]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			utils.NormalizeL2(sums[c])
			centroids[c] = sums[c]
		}
	}
	ix.centroids = centroids
	ix.lists = make([][]string, k)
	ix.assigned = make(map[string]int, n)
	for i := range ix.s.entries {
		ix.assign(i)
	}
	ix.trainedAt = n
	if ix.logger != nil {
		ix.logger.Debug("ivf partitions trained", zap.Int("entries", n), zap.Int("partitions", k))
	}
}

func (ix *IVFIndex) assign(pos int) {
	e := ix.s.entries[pos]
	c := nearest(ix.centroids, e.vec)
	ix.lists[c] = append(ix.lists[c], e.id)
	ix.assigned[e.id] = c
}

func (ix *IVFIndex) nearestCentroids(q []float32) []int {
	order := make([]int, len(ix.centroids))
	scores := make([]float64, len(ix.centroids))
	for c, centroid := range ix.centroids {
		order[c] = c
		scores[c] = innerProduct(q, centroid)
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
	return order
}

func nearest(centroids [][]float32, v []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for c, centroid := range centroids {
		if s := innerProduct(v, centroid); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}
