// Package indexer chunks normalized pages and indexes them into storage, vector and keyword indices.
package indexer

import (
	"fmt"
	"unicode"

	"github.com/hyperjump/shoel/internal/models"
)

// Chunker splits page text into overlapping character windows.
// Sizes are counted in runes.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker. overlap must be in [0, size).
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidRequest, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrInvalidRequest, chunkSize, chunkOverlap)
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

// ChunkID returns the deterministic id of the index-th chunk of a page.
func ChunkID(docID string, pageNumber, index int) string {
	return fmt.Sprintf("%s_p%d_c%d", docID, pageNumber, index)
}

// ChunkPage splits one page into chunks. Every chunk after the first starts with
// the last overlap runes of its predecessor, so concatenating the first chunk with
// each later chunk minus its first overlap runes rebuilds the page text exactly.
// A window end that falls inside a word moves back to the preceding whitespace
// when that whitespace lies in the last fifth of the window and the chunk stays
// longer than the overlap. Empty pages yield no chunks.
func (c *Chunker) ChunkPage(docID string, pageNumber int, text string) []*models.Chunk {
	rs := []rune(text)
	n := len(rs)
	if n == 0 {
		return nil
	}
	var chunks []*models.Chunk
	for start := 0; ; {
		end := start + c.chunkSize
		if end >= n {
			end = n
		} else {
			end = c.snapEnd(rs, start, end)
		}
		idx := len(chunks)
		chunks = append(chunks, &models.Chunk{
			ID:         ChunkID(docID, pageNumber, idx),
			DocumentID: docID,
			PageNumber: pageNumber,
			Index:      idx,
			CharOffset: start,
			Text:       string(rs[start:end]),
		})
		if end >= n {
			break
		}
		start = end - c.chunkOverlap
	}
	return chunks
}

func (c *Chunker) snapEnd(rs []rune, start, end int) int {
	if unicode.IsSpace(rs[end-1]) || unicode.IsSpace(rs[end]) {
		return end
	}
	floor := end - c.chunkSize/5
	for i := end - 1; i >= floor && i > start; i-- {
		if !unicode.IsSpace(rs[i]) {
			continue
		}
		if i+1-start > c.chunkOverlap {
			return i + 1
		}
		break
	}
	return end
}

// ChunkPages chunks every page of a document. Chunk.Index runs across the whole document.
func (c *Chunker) ChunkPages(docID string, pages []models.PageText) []*models.Chunk {
	var all []*models.Chunk
	for _, p := range pages {
		for _, ch := range c.ChunkPage(docID, p.PageNumber, p.NormalizedText) {
			ch.Index = len(all)
			all = append(all, ch)
		}
	}
	return all
}
