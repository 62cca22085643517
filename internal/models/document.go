// Package models defines core data structures for documents, chunks, retrieval hits, answers and chat turns.
package models

import "time"

// DocumentStatus is the ingestion state of a document.
type DocumentStatus string

const (
	StatusPending DocumentStatus = "pending"
	StatusIndexed DocumentStatus = "indexed"
	StatusFailed  DocumentStatus = "failed"
)

// Document is an uploaded PDF (or raw text) and its pages.
// Pages is empty when the document is returned from a list operation.
type Document struct {
	ID         string            `json:"doc_id"`
	Filename   string            `json:"filename"`
	Pages      []PageText        `json:"pages,omitempty"`
	Status     DocumentStatus    `json:"status"`
	Error      string            `json:"error,omitempty"`
	ChunkCount int               `json:"total_chunks"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Summary returns a copy of the document without its pages.
func (d *Document) Summary() *Document {
	cp := *d
	cp.Pages = nil
	cp.Metadata = copyMetadata(d.Metadata)
	return &cp
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Pages = append([]PageText(nil), d.Pages...)
	cp.Metadata = copyMetadata(d.Metadata)
	return &cp
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PageText is the text of one page. PageNumber is 1-based.
type PageText struct {
	PageNumber     int    `json:"page_number"`
	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text"`
}

// Chunk is a bounded span of normalized text from exactly one page.
// CharOffset is measured in runes from the start of the page's normalized text.
type Chunk struct {
	ID         string `json:"chunk_id"`
	DocumentID string `json:"doc_id"`
	PageNumber int    `json:"page_number"`
	Index      int    `json:"chunk_index"`
	CharOffset int    `json:"char_offset"`
	Text       string `json:"text"`
}
