// Package keyword provides BM25 keyword search over chunk texts for hybrid retrieval.
package keyword

import (
	"context"

	"github.com/hyperjump/shoel/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// PhraseBoost multiplies the score of chunks where the query terms appear as a phrase.
	// Values > 1 enable the boost (e.g. 1.5).
	PhraseBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits, which absorbs single-letter
	// spelling variants (כתיב מלא / חסר).
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Default is 1.
	Fuzziness int
}

// KeywordIndex indexes chunk texts and searches them by keyword.
type KeywordIndex interface {
	IndexChunks(ctx context.Context, chunks []*models.Chunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	// DeleteDocument removes every chunk of docID and reports how many were removed.
	DeleteDocument(ctx context.Context, docID string) (int, error)
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit. ID is the chunk id.
type KeywordResult struct {
	ID         string
	DocumentID string
	Score      float64
}
