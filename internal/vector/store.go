package vector

import (
	"fmt"
	"sort"

	"github.com/hyperjump/shoel/internal/models"
	"github.com/hyperjump/shoel/pkg/utils"
)

type entry struct {
	id    string
	docID string
	seq   uint64
	sum   uint64
	vec   []float32
}

// store keeps entries in insertion order with a chunk id lookup. It is not
// safe for concurrent use; callers hold their own lock.
type store struct {
	dimensions int
	entries    []entry
	pos        map[string]int
	nextSeq    uint64
}

func newStore(dimensions int) store {
	return store{dimensions: dimensions, pos: make(map[string]int)}
}

// validate checks dimensions and duplicates without mutating the store.
func (s *store) validate(entries []Entry) error {
	batch := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("%w: empty chunk id", models.ErrInvalidRequest)
		}
		if len(e.Vector) != s.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(e.Vector), s.dimensions)
		}
		if _, ok := s.pos[e.ChunkID]; ok {
			return fmt.Errorf("%w: chunk %s", models.ErrDuplicateKey, e.ChunkID)
		}
		if _, ok := batch[e.ChunkID]; ok {
			return fmt.Errorf("%w: chunk %s repeated in batch", models.ErrDuplicateKey, e.ChunkID)
		}
		batch[e.ChunkID] = struct{}{}
	}
	return nil
}

// add appends normalized copies and returns the positions of the new entries.
func (s *store) add(entries []Entry) []int {
	added := make([]int, 0, len(entries))
	for _, e := range entries {
		vec := make([]float32, s.dimensions)
		copy(vec, e.Vector)
		utils.NormalizeL2(vec)
		s.pos[e.ChunkID] = len(s.entries)
		added = append(added, len(s.entries))
		s.entries = append(s.entries, entry{id: e.ChunkID, docID: e.DocumentID, seq: s.nextSeq, sum: e.Checksum, vec: vec})
		s.nextSeq++
	}
	return added
}

// removeDocument compacts the entries slice, keeping order.
func (s *store) removeDocument(docID string) int {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.docID == docID {
			delete(s.pos, e.id)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = entry{}
	}
	s.entries = kept
	if removed > 0 {
		for i, e := range s.entries {
			s.pos[e.id] = i
		}
	}
	return removed
}

func (s *store) replace(entries []entry) {
	s.entries = entries
	s.pos = make(map[string]int, len(entries))
	s.nextSeq = 0
	for i := range s.entries {
		s.entries[i].seq = s.nextSeq
		s.nextSeq++
		s.pos[s.entries[i].id] = i
	}
}

func (s *store) checksum(chunkID string) (uint64, bool) {
	p, ok := s.pos[chunkID]
	if !ok {
		return 0, false
	}
	return s.entries[p].sum, true
}

func (s *store) documents() map[string]int {
	out := make(map[string]int)
	for _, e := range s.entries {
		out[e.docID]++
	}
	return out
}

type scored struct {
	pos   int
	seq   uint64
	score float64
}

// topK sorts candidates by descending score, then ascending insertion sequence, and keeps k.
func topK(cands []scored, k int) []scored {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].seq < cands[j].seq
	})
	if k < len(cands) {
		cands = cands[:k]
	}
	return cands
}

func (s *store) results(cands []scored) []*VectorResult {
	out := make([]*VectorResult, len(cands))
	for i, c := range cands {
		e := s.entries[c.pos]
		out[i] = &VectorResult{ID: e.id, DocumentID: e.docID, Score: c.score}
	}
	return out
}

func (s *store) score(pos int, query []float32) scored {
	e := s.entries[pos]
	return scored{pos: pos, seq: e.seq, score: innerProduct(query, e.vec)}
}

func innerProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func normalizedQuery(query []float32, dimensions int) ([]float32, error) {
	if len(query) != dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), dimensions)
	}
	q := make([]float32, dimensions)
	copy(q, query)
	utils.NormalizeL2(q)
	return q, nil
}
