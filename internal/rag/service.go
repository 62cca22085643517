// Package rag wires ingestion, retrieval, sessions and answer generation into
// the operations exposed by the HTTP server and the CLI.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/shoel/internal/answer"
	"github.com/hyperjump/shoel/internal/embedding"
	"github.com/hyperjump/shoel/internal/indexer"
	"github.com/hyperjump/shoel/internal/models"
	"github.com/hyperjump/shoel/internal/search"
	"github.com/hyperjump/shoel/internal/session"
	"github.com/hyperjump/shoel/internal/storage"
	"github.com/hyperjump/shoel/internal/vector"
	"go.uber.org/zap"
)

// ProviderReporter exposes the LLM fallback chain state.
type ProviderReporter interface {
	Active() string
	Providers() []string
}

// Deps are the components a Service runs on.
type Deps struct {
	Storage     storage.Storage
	Embedder    embedding.Embedder
	VectorIndex vector.VectorIndex
	Indexer     *indexer.Indexer
	Engine      *search.Engine
	Composer    *answer.Composer
	Sessions    *session.Manager
	Providers   ProviderReporter
	// DiskPaths are summed for the status disk usage.
	DiskPaths []string
}

// Service implements ingestion, search and chat.
type Service struct {
	Deps
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for service events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service over deps.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{Deps: deps}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestPDF extracts and indexes an uploaded PDF under a new document id.
func (s *Service) IngestPDF(ctx context.Context, filename string, content []byte, metadata map[string]string) (*models.Document, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty file", models.ErrInvalidRequest)
	}
	return s.Indexer.IngestPDF(ctx, filename, content, indexer.IngestOptions{Metadata: metadata})
}

// IngestText indexes raw text as a single-page document.
func (s *Service) IngestText(ctx context.Context, req models.TextIngestRequest) (*models.Document, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", models.ErrInvalidRequest)
	}
	if req.ChunkSize < 0 || req.ChunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk_size and chunk_overlap must not be negative", models.ErrInvalidRequest)
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "text"
	}
	pages := []models.PageText{{PageNumber: 1, RawText: req.Content}}
	return s.Indexer.Ingest(ctx, filename, pages, indexer.IngestOptions{
		Metadata:     req.Metadata,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
}

// Search answers a single question from the indexed documents.
func (s *Service) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hits, err := s.Engine.Retrieve(ctx, req.Query, req.TopK)
	if err != nil {
		return nil, err
	}
	ans, err := s.Composer.Answer(ctx, req.Query, hits, nil)
	if err != nil {
		return nil, err
	}
	resp := &models.SearchResponse{Answer: ans.Text, Provider: ans.Provider, Sources: []models.Source{}}
	if req.WantSources() {
		resp.Sources = models.SourcesFromHits(ans.Sources)
	}
	return resp, nil
}

// Chat answers one message in a conversation. Calls on the same session run
// one at a time; the exchange is appended to the history only when an answer
// was produced.
func (s *Service) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sessionID, unlock := s.Sessions.Lock(req.SessionID)
	defer unlock()

	history := s.Sessions.History(sessionID)
	hits, err := s.Engine.Retrieve(ctx, req.Message, req.TopK)
	if err != nil {
		return nil, err
	}
	ans, err := s.Composer.Answer(ctx, req.Message, hits, history)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("chat generation failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, err
	}
	s.Sessions.Append(sessionID,
		models.Turn{Role: models.RoleUser, Text: req.Message},
		models.Turn{Role: models.RoleAssistant, Text: ans.Text},
	)
	return &models.ChatResponse{
		SessionID: sessionID,
		Answer:    ans.Text,
		Provider:  ans.Provider,
		History:   s.Sessions.History(sessionID),
		Sources:   models.SourcesFromHits(ans.Sources),
	}, nil
}

// ListDocuments returns document summaries ordered by creation time.
func (s *Service) ListDocuments(ctx context.Context, offset, limit int) (*models.DocumentListResponse, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must not be negative", models.ErrInvalidRequest)
	}
	docs, err := s.Storage.ListDocuments(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.Storage.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return &models.DocumentListResponse{Documents: docs, Offset: offset, Limit: limit, Total: total}, nil
}

// GetDocument returns a document with its pages.
func (s *Service) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return s.Storage.GetDocument(ctx, id)
}

// DeleteDocument removes a document and its index entries.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	return s.Indexer.Delete(ctx, id)
}

// ActiveProvider returns the name of the LLM provider currently in use.
func (s *Service) ActiveProvider() string {
	if s.Providers == nil {
		return "none"
	}
	return s.Providers.Active()
}

// Status reports counts, index state, providers and disk usage.
func (s *Service) Status(ctx context.Context) (*models.StatusResponse, error) {
	docs, err := s.Storage.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	chunks, err := s.Storage.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	disk, err := storage.DiskUsageBytes(s.DiskPaths...)
	if err != nil {
		return nil, fmt.Errorf("disk usage: %w", err)
	}
	st := &models.StatusResponse{
		Status:          "ok",
		Documents:       docs,
		Chunks:          chunks,
		VectorIndexType: s.VectorIndex.Type(),
		VectorIndexSize: s.VectorIndex.Size(),
		Embedder:        s.Embedder.Name(),
		HybridRetrieval: s.Engine.Hybrid(),
		ActiveProvider:  s.ActiveProvider(),
		Providers:       []string{},
		Sessions:        s.Sessions.Len(),
		DiskUsageBytes:  disk,
	}
	if s.Providers != nil {
		st.Providers = s.Providers.Providers()
	}
	return st, nil
}

// EvictSessions drops chat sessions idle for longer than ttl.
func (s *Service) EvictSessions(ttl time.Duration) int {
	return s.Sessions.EvictStale(time.Now(), ttl)
}
