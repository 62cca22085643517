package vector

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx, _ := NewMemoryIndex(384)
	ctx := context.Background()
	entries := make([]Entry, 1000)
	for i := range entries {
		v := make([]float32, 384)
		v[0] = float32(i) / 1000
		v[1+i%383] = 1
		entries[i] = Entry{ChunkID: fmt.Sprintf("c%d", i), DocumentID: fmt.Sprintf("d%d", i%50), Vector: v}
	}
	_ = idx.Add(ctx, entries)
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 7)
	}
}
