package models

import (
	"fmt"
	"strings"
)

// TextIngestRequest ingests raw text as a single-page document.
// ChunkSize and ChunkOverlap override the configured values when positive.
type TextIngestRequest struct {
	Filename     string            `json:"filename"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ChunkSize    int               `json:"chunk_size,omitempty"`
	ChunkOverlap int               `json:"chunk_overlap,omitempty"`
}

// IngestResponse reports the outcome of an ingestion.
type IngestResponse struct {
	DocumentID  string         `json:"doc_id"`
	Status      DocumentStatus `json:"status"`
	TotalChunks int            `json:"total_chunks"`
}

// SearchRequest is a single-turn question. A zero TopK means the configured default.
// IncludeSources defaults to true when omitted.
type SearchRequest struct {
	Query          string `json:"query"`
	TopK           int    `json:"top_k,omitempty"`
	IncludeSources *bool  `json:"include_sources,omitempty"`
}

// Validate trims the query and rejects empty queries and negative top_k.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidRequest)
	}
	if r.TopK < 0 {
		return fmt.Errorf("%w: top_k must be >= 1", ErrInvalidRequest)
	}
	return nil
}

// WantSources reports whether sources should be returned.
func (r *SearchRequest) WantSources() bool {
	return r.IncludeSources == nil || *r.IncludeSources
}

// SourceMetadata locates a source inside its document.
type SourceMetadata struct {
	Page     int    `json:"page"`
	Filename string `json:"filename,omitempty"`
}

// Source is a cited passage in a search or chat response.
type Source struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"doc_id"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Metadata   SourceMetadata `json:"metadata"`
}

// SourcesFromHits converts retrieval hits into response sources, keeping order.
func SourcesFromHits(hits []RetrievalHit) []Source {
	out := make([]Source, 0, len(hits))
	for _, h := range hits {
		out = append(out, Source{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Text:       h.Text,
			Score:      h.Score,
			Metadata:   SourceMetadata{Page: h.PageNumber, Filename: h.Filename},
		})
	}
	return out
}

// SearchResponse is the answer to a SearchRequest.
type SearchResponse struct {
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Provider string   `json:"provider"`
}

// ChatRequest is one user message in a conversation. An empty SessionID starts a new session.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

// Validate trims the message and rejects empty messages and negative top_k.
func (r *ChatRequest) Validate() error {
	r.Message = strings.TrimSpace(r.Message)
	r.SessionID = strings.TrimSpace(r.SessionID)
	if r.Message == "" {
		return fmt.Errorf("%w: message cannot be empty", ErrInvalidRequest)
	}
	if r.TopK < 0 {
		return fmt.Errorf("%w: top_k must be >= 1", ErrInvalidRequest)
	}
	return nil
}

// ChatResponse is the reply to a ChatRequest.
type ChatResponse struct {
	SessionID string   `json:"session_id"`
	Answer    string   `json:"answer"`
	Provider  string   `json:"provider"`
	History   []Turn   `json:"history"`
	Sources   []Source `json:"sources,omitempty"`
}

// StatusResponse describes the state of the service.
type StatusResponse struct {
	Status          string   `json:"status"`
	Documents       int64    `json:"documents"`
	Chunks          int64    `json:"chunks"`
	VectorIndexType string   `json:"vector_index_type"`
	VectorIndexSize int      `json:"vector_index_size"`
	Embedder        string   `json:"embedder"`
	HybridRetrieval bool     `json:"hybrid_retrieval"`
	ActiveProvider  string   `json:"active_provider"`
	Providers       []string `json:"providers"`
	Sessions        int      `json:"sessions"`
	DiskUsageBytes  int64    `json:"disk_usage_bytes"`
}

// DocumentListResponse is a page of document summaries.
type DocumentListResponse struct {
	Documents []*Document `json:"documents"`
	Offset    int         `json:"offset"`
	Limit     int         `json:"limit"`
	Total     int64       `json:"total"`
}
