package search

import (
	"math"
	"testing"

	"github.com/hyperjump/shoel/internal/keyword"
	"github.com/hyperjump/shoel/internal/vector"
)

func TestNormalizeKeywordScores(t *testing.T) {
	results := []*keyword.KeywordResult{
		{ID: "a", DocumentID: "d", Score: 2},
		{ID: "b", DocumentID: "d", Score: 4},
		{ID: "c", DocumentID: "d", Score: 1},
	}
	got := NormalizeKeywordScores(results)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].ChunkID != "a" || got[0].Score != 0.5 {
		t.Errorf("a should be 0.5, got %+v", got[0])
	}
	if got[1].Score != 1.0 {
		t.Errorf("max score should be 1.0, got %f", got[1].Score)
	}
	if len(NormalizeKeywordScores(nil)) != 0 {
		t.Error("expected empty result for no input")
	}
}

func TestFromSemantic(t *testing.T) {
	got := FromSemantic([]*vector.VectorResult{{ID: "c1", DocumentID: "d1", Score: 0.9}})
	if len(got) != 1 || got[0].Score != 0.9 || got[0].SemanticScore != 0.9 || got[0].DocumentID != "d1" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestFuse(t *testing.T) {
	sem := []*vector.VectorResult{
		{ID: "c1", DocumentID: "d1", Score: 0.8},
		{ID: "c2", DocumentID: "d1", Score: 0.6},
	}
	kw := []KeywordScore{
		{ChunkID: "c2", DocumentID: "d1", Score: 1.0},
		{ChunkID: "c3", DocumentID: "d2", Score: 0.5},
	}
	results := Fuse(kw, sem, 0.5)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []struct {
		id    string
		score float64
	}{
		{"c2", 0.8},
		{"c1", 0.4},
		{"c3", 0.25},
	}
	for i, w := range want {
		if results[i].ChunkID != w.id || math.Abs(results[i].Score-w.score) > 1e-9 {
			t.Errorf("result[%d]=%s/%f, want %s/%f", i, results[i].ChunkID, results[i].Score, w.id, w.score)
		}
	}
}

func TestFuse_ZeroWeightIsCosine(t *testing.T) {
	sem := []*vector.VectorResult{{ID: "c1", DocumentID: "d", Score: 0.7}}
	results := Fuse([]KeywordScore{{ChunkID: "c1", Score: 1}}, sem, 0)
	if results[0].Score != 0.7 {
		t.Errorf("score=%f, want pure cosine 0.7", results[0].Score)
	}
}

func TestFuse_TiesKeepSemanticOrder(t *testing.T) {
	sem := []*vector.VectorResult{
		{ID: "b", DocumentID: "d", Score: 0.5},
		{ID: "a", DocumentID: "d", Score: 0.5},
	}
	results := Fuse(nil, sem, 0.3)
	if results[0].ChunkID != "b" || results[1].ChunkID != "a" {
		t.Errorf("ties reordered: %s, %s", results[0].ChunkID, results[1].ChunkID)
	}
}
