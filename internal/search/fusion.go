package search

import (
	"sort"

	"github.com/hyperjump/shoel/internal/keyword"
	"github.com/hyperjump/shoel/internal/vector"
)

// FusedResult is a chunk with its combined and per-retriever scores.
type FusedResult struct {
	ChunkID       string
	DocumentID    string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// KeywordScore is a keyword hit with its score scaled into [0,1].
type KeywordScore struct {
	ChunkID    string
	DocumentID string
	Score      float64
}

// NormalizeKeywordScores divides keyword scores by their maximum, keeping order.
func NormalizeKeywordScores(results []*keyword.KeywordResult) []KeywordScore {
	out := make([]KeywordScore, 0, len(results))
	maxScore := 0.0
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		s := 0.0
		if maxScore > 0 {
			s = r.Score / maxScore
		}
		out = append(out, KeywordScore{ChunkID: r.ID, DocumentID: r.DocumentID, Score: s})
	}
	return out
}

// FromSemantic wraps vector results as fused results scored by cosine alone.
func FromSemantic(results []*vector.VectorResult) []*FusedResult {
	out := make([]*FusedResult, len(results))
	for i, r := range results {
		out[i] = &FusedResult{ChunkID: r.ID, DocumentID: r.DocumentID, Score: r.Score, SemanticScore: r.Score}
	}
	return out
}

// Fuse combines cosine and normalized keyword scores per chunk as
// (1-w)*cosine + w*keyword. A chunk missing from one retriever scores 0 there.
// Results are sorted by descending score; ties keep semantic order, then keyword order.
func Fuse(keywordScores []KeywordScore, semantic []*vector.VectorResult, keywordWeight float64) []*FusedResult {
	if keywordWeight < 0 {
		keywordWeight = 0
	}
	if keywordWeight > 1 {
		keywordWeight = 1
	}
	byChunk := make(map[string]*FusedResult, len(semantic)+len(keywordScores))
	results := make([]*FusedResult, 0, len(semantic)+len(keywordScores))
	for _, r := range semantic {
		fr := &FusedResult{ChunkID: r.ID, DocumentID: r.DocumentID, SemanticScore: r.Score}
		byChunk[r.ID] = fr
		results = append(results, fr)
	}
	for _, k := range keywordScores {
		fr, ok := byChunk[k.ChunkID]
		if !ok {
			fr = &FusedResult{ChunkID: k.ChunkID, DocumentID: k.DocumentID}
			byChunk[k.ChunkID] = fr
			results = append(results, fr)
		}
		fr.KeywordScore = k.Score
	}
	for _, fr := range results {
		fr.Score = (1-keywordWeight)*fr.SemanticScore + keywordWeight*fr.KeywordScore
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
