package vector

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
)

func randomEntries(n, dim int, seed int64) []Entry {
	r := rand.New(rand.NewSource(seed))
	out := make([]Entry, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		out[i] = Entry{ChunkID: fmt.Sprintf("doc%d_p1_c%d", i%5, i), DocumentID: fmt.Sprintf("doc%d", i%5), Vector: v}
	}
	return out
}

func TestIVFIndex_ExactBelowThreshold(t *testing.T) {
	idx, err := NewIVFIndex(4, 100, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	es := randomEntries(50, 4, 1)
	if err := idx.Add(ctx, es); err != nil {
		t.Fatal(err)
	}
	if idx.Partitions() != 0 {
		t.Errorf("expected no partitions below threshold, got %d", idx.Partitions())
	}

	exact, _ := NewMemoryIndex(4)
	_ = exact.Add(ctx, es)
	want, _ := exact.Search(ctx, es[7].Vector, 5)
	got, _ := idx.Search(ctx, es[7].Vector, 5)
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("result[%d]=%s, want %s", i, got[i].ID, want[i].ID)
		}
	}
}

func TestIVFIndex_TrainsAboveThreshold(t *testing.T) {
	idx, _ := NewIVFIndex(8, 64, 3)
	ctx := context.Background()
	es := randomEntries(200, 8, 2)
	if err := idx.Add(ctx, es[:100]); err != nil {
		t.Fatal(err)
	}
	if got := idx.Partitions(); got != 10 {
		t.Errorf("Partitions=%d, want 10", got)
	}
	if err := idx.Add(ctx, es[100:]); err != nil {
		t.Fatal(err)
	}
	if got := idx.Partitions(); got != 14 {
		t.Errorf("Partitions after doubling=%d, want 14", got)
	}

	// an indexed vector finds itself
	for _, i := range []int{0, 57, 150, 199} {
		results, err := idx.Search(ctx, es[i].Vector, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		if results[0].ID != es[i].ChunkID {
			t.Errorf("query %d: top=%s, want %s", i, results[0].ID, es[i].ChunkID)
		}
	}
}

func TestIVFIndex_RemoveDocument(t *testing.T) {
	idx, _ := NewIVFIndex(8, 32, 2)
	ctx := context.Background()
	es := randomEntries(100, 8, 3)
	_ = idx.Add(ctx, es)

	n, err := idx.RemoveDocument(ctx, "doc0")
	if err != nil {
		t.Fatal(err)
	}
	if n != 20 {
		t.Errorf("removed %d, want 20", n)
	}
	results, _ := idx.Search(ctx, es[0].Vector, 80)
	for _, r := range results {
		if r.DocumentID == "doc0" {
			t.Fatalf("removed document returned: %s", r.ID)
		}
	}
	if len(results) != 80 {
		t.Errorf("expected 80 results, got %d", len(results))
	}
}

func TestIVFIndex_SaveLoadRetrains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.idx")
	ctx := context.Background()
	idx, _ := NewIVFIndex(4, 16, 2)
	_ = idx.Add(ctx, randomEntries(40, 4, 4))
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewIVFIndex(4, 16, 2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 40 {
		t.Errorf("Size=%d", loaded.Size())
	}
	if loaded.Partitions() == 0 {
		t.Error("expected partitions after load")
	}
}

func BenchmarkMemoryIndex_Search(b *testing.B) {
	benchmarkSearch(b, func() VectorIndex { idx, _ := NewMemoryIndex(384); return idx })
}

func BenchmarkIVFIndex_Search(b *testing.B) {
	benchmarkSearch(b, func() VectorIndex { idx, _ := NewIVFIndex(384, 1024, 8); return idx })
}

func benchmarkSearch(b *testing.B, newIndex func() VectorIndex) {
	idx := newIndex()
	ctx := context.Background()
	es := randomEntries(10000, 384, 5)
	if err := idx.Add(ctx, es); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Search(ctx, es[i%len(es)].Vector, 10); err != nil {
			b.Fatal(err)
		}
	}
}
