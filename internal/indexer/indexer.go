package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperjump/shoel/internal/config"
	"github.com/hyperjump/shoel/internal/embedding"
	"github.com/hyperjump/shoel/internal/extract"
	"github.com/hyperjump/shoel/internal/hebrew"
	"github.com/hyperjump/shoel/internal/keyword"
	"github.com/hyperjump/shoel/internal/models"
	"github.com/hyperjump/shoel/internal/storage"
	"github.com/hyperjump/shoel/internal/vector"
	"go.uber.org/zap"
)

const defaultBatchSize = 64

// Indexer runs the ingestion pipeline: normalize, chunk, embed, then write
// storage, vector index and keyword index. Work on one document id is
// serialized; different documents are ingested concurrently.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex // optional
	chunker      *Chunker
	extractor    *extract.Extractor
	batchSize    int
	locks        *keyedMutex
	newID        func() string
	logger       *zap.Logger // optional; when set, logs pipeline events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for pipeline events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithBatchSize sets how many chunk texts go into one embedding call.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithIDGenerator replaces the uuid generator used for new documents.
func WithIDGenerator(f func() string) IndexerOption {
	return func(idx *Indexer) { idx.newID = f }
}

// IngestOptions are per-request settings.
// ChunkSize and ChunkOverlap override the configured values when positive.
type IngestOptions struct {
	Metadata     map[string]string
	ChunkSize    int
	ChunkOverlap int
}

// NewIndexer creates an indexer. keywordIndex may be nil when hybrid retrieval is off.
// extractor may be nil; PDF operations then use a default extractor.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	cfg *config.RetrievalConfig,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) (*Indexer, error) {
	if embedder.Dimensions() != vectorIndex.Dimensions() {
		return nil, fmt.Errorf("embedder dimension %d does not match vector index dimension %d",
			embedder.Dimensions(), vectorIndex.Dimensions())
	}
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		storage:      store,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		chunker:      chunker,
		extractor:    extractor,
		batchSize:    defaultBatchSize,
		locks:        newKeyedMutex(),
		newID:        func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Ingest stores pages under a fresh document id and indexes them.
// The returned document carries its final status; on failure it is returned
// together with the error when a document record was written.
func (idx *Indexer) Ingest(ctx context.Context, filename string, pages []models.PageText, opts IngestOptions) (*models.Document, error) {
	docID := idx.newID()
	unlock := idx.locks.Lock(docID)
	defer unlock()
	return idx.ingestLocked(ctx, docID, filename, pages, opts)
}

// IngestPDF extracts the pages of a PDF and ingests them under a fresh document id.
// An unreadable PDF is recorded as a failed document.
func (idx *Indexer) IngestPDF(ctx context.Context, filename string, content []byte, opts IngestOptions) (*models.Document, error) {
	pages, err := idx.extractor.ExtractPages(content)
	if err != nil {
		docID := idx.newID()
		unlock := idx.locks.Lock(docID)
		defer unlock()
		return idx.recordFailure(ctx, &models.Document{ID: docID, Filename: filename, Metadata: opts.Metadata}, err)
	}
	return idx.Ingest(ctx, filename, pages, opts)
}

// Replace re-ingests pages under an existing document id. Entries of the
// previous version are removed first.
func (idx *Indexer) Replace(ctx context.Context, docID, filename string, pages []models.PageText, opts IngestOptions) (*models.Document, error) {
	unlock := idx.locks.Lock(docID)
	defer unlock()
	if err := idx.removeEntries(ctx, docID); err != nil {
		return nil, err
	}
	return idx.ingestLocked(ctx, docID, filename, pages, opts)
}

func (idx *Indexer) ingestLocked(ctx context.Context, docID, filename string, pages []models.PageText, opts IngestOptions) (*models.Document, error) {
	chunker, err := idx.chunkerFor(opts)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:       docID,
		Filename: filename,
		Status:   models.StatusPending,
		Metadata: opts.Metadata,
		Pages:    make([]models.PageText, len(pages)),
	}
	for i, p := range pages {
		p.NormalizedText = hebrew.Normalize(p.RawText)
		doc.Pages[i] = p
	}
	if err := idx.storage.PutDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer document pending", zap.String("doc_id", docID), zap.String("filename", filename), zap.Int("pages", len(pages)))
	}

	chunks := chunker.ChunkPages(docID, doc.Pages)
	if len(chunks) == 0 {
		return idx.recordFailure(ctx, doc, fmt.Errorf("%w: no text found in %d pages", models.ErrExtractionFailed, len(pages)))
	}

	vecs, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		return idx.abort(ctx, doc, err)
	}

	if err := idx.storage.PutChunks(ctx, chunks); err != nil {
		return idx.abort(ctx, doc, fmt.Errorf("failed to store chunks: %w", err))
	}
	entries := make([]vector.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vector.Entry{ChunkID: c.ID, DocumentID: docID, Vector: vecs[i], Checksum: vector.Checksum(c.Text)}
	}
	if err := idx.vectorIndex.Add(ctx, entries); err != nil {
		if errors.Is(err, models.ErrDuplicateKey) && idx.logger != nil {
			idx.logger.Error("vector index rejected duplicate chunk id", zap.String("doc_id", docID), zap.Error(err))
		}
		return idx.abort(ctx, doc, fmt.Errorf("failed to index vectors: %w", err))
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.IndexChunks(ctx, chunks); err != nil {
			return idx.abort(ctx, doc, fmt.Errorf("failed to index keywords: %w", err))
		}
	}
	if err := ctx.Err(); err != nil {
		return idx.abort(ctx, doc, err)
	}

	if err := idx.storage.MarkStatus(ctx, docID, models.StatusIndexed, ""); err != nil {
		return idx.abort(ctx, doc, fmt.Errorf("failed to mark document indexed: %w", err))
	}
	doc.Status = models.StatusIndexed
	doc.ChunkCount = len(chunks)
	if idx.logger != nil {
		idx.logger.Debug("indexer document indexed", zap.String("doc_id", docID), zap.Int("chunks", len(chunks)))
	}
	return doc, nil
}

func (idx *Indexer) chunkerFor(opts IngestOptions) (*Chunker, error) {
	if opts.ChunkSize <= 0 && opts.ChunkOverlap <= 0 {
		return idx.chunker, nil
	}
	size, overlap := idx.chunker.chunkSize, idx.chunker.chunkOverlap
	if opts.ChunkSize > 0 {
		size = opts.ChunkSize
		if opts.ChunkOverlap <= 0 && overlap >= size {
			overlap = 0
		}
	}
	if opts.ChunkOverlap > 0 {
		overlap = opts.ChunkOverlap
	}
	return NewChunker(size, overlap)
}

// embedChunks embeds all chunk texts in batches, each retried once.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*models.Chunk) ([][]float32, error) {
	vecs := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := embedding.EmbedWithRetry(ctx, idx.embedder, texts, idx.logger)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, batch...)
	}
	return vecs, nil
}

// abort undoes partial writes of a failed ingestion. A cancelled ingestion
// leaves nothing behind; any other failure leaves the document marked failed.
func (idx *Indexer) abort(ctx context.Context, doc *models.Document, cause error) (*models.Document, error) {
	cleanup := context.WithoutCancel(ctx)
	if err := idx.removeEntries(cleanup, doc.ID); err != nil && idx.logger != nil {
		idx.logger.Warn("indexer rollback incomplete", zap.String("doc_id", doc.ID), zap.Error(err))
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		if err := idx.storage.DeleteDocument(cleanup, doc.ID); err != nil && !errors.Is(err, models.ErrNotFound) && idx.logger != nil {
			idx.logger.Warn("indexer failed to drop cancelled document", zap.String("doc_id", doc.ID), zap.Error(err))
		}
		if idx.logger != nil {
			idx.logger.Debug("indexer ingestion cancelled", zap.String("doc_id", doc.ID))
		}
		return nil, cause
	}
	return idx.recordFailure(cleanup, doc, cause)
}

// recordFailure stores doc with status failed and the cause as reason.
func (idx *Indexer) recordFailure(ctx context.Context, doc *models.Document, cause error) (*models.Document, error) {
	doc.Status = models.StatusFailed
	doc.Error = cause.Error()
	doc.ChunkCount = 0
	if err := idx.storage.PutDocument(ctx, doc); err != nil {
		return nil, errors.Join(cause, fmt.Errorf("failed to record failure: %w", err))
	}
	if idx.logger != nil {
		idx.logger.Warn("indexer document failed", zap.String("doc_id", doc.ID), zap.String("filename", doc.Filename), zap.Error(cause))
	}
	return doc, cause
}

// removeEntries drops the vector, keyword and chunk entries of docID but keeps the document row.
func (idx *Indexer) removeEntries(ctx context.Context, docID string) error {
	if _, err := idx.vectorIndex.RemoveDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if idx.keywordIndex != nil {
		if _, err := idx.keywordIndex.DeleteDocument(ctx, docID); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	if err := idx.storage.DeleteChunksByDocumentID(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Delete removes a document from all indices and storage.
// Unknown ids return models.ErrNotFound.
func (idx *Indexer) Delete(ctx context.Context, docID string) error {
	unlock := idx.locks.Lock(docID)
	defer unlock()
	if _, err := idx.storage.GetDocument(ctx, docID); err != nil {
		return err
	}
	if err := idx.removeEntries(ctx, docID); err != nil {
		return err
	}
	if err := idx.storage.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer document deleted", zap.String("doc_id", docID))
	}
	return nil
}

// Rebuild restores derived state after a restart. Documents left pending by an
// interrupted ingestion are marked failed. Indexed documents whose vectors are
// missing, extra or computed from different text are re-embedded from stored
// chunks, and the keyword index, when present, is refilled. Vectors of
// documents that are gone from the store or not indexed are removed. It
// returns the number of documents whose vectors were rebuilt.
func (idx *Indexer) Rebuild(ctx context.Context) (int, error) {
	docs, err := idx.storage.ListDocuments(ctx, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}
	counts := idx.vectorIndex.Documents()
	rebuilt := 0
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return rebuilt, err
		}
		n, err := idx.rebuildDocument(ctx, d, counts[d.ID])
		if err != nil {
			return rebuilt, fmt.Errorf("rebuild %s: %w", d.ID, err)
		}
		rebuilt += n
	}
	orphans, err := idx.removeOrphans(ctx)
	if err != nil {
		return rebuilt, err
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer rebuild finished",
			zap.Int("documents", len(docs)), zap.Int("rebuilt", rebuilt), zap.Int("orphans", orphans))
	}
	return rebuilt, nil
}

// removeOrphans drops index entries of documents that are not indexed in the store.
func (idx *Indexer) removeOrphans(ctx context.Context) (int, error) {
	removed := 0
	for docID := range idx.vectorIndex.Documents() {
		n, err := idx.removeOrphan(ctx, docID)
		if err != nil {
			return removed, fmt.Errorf("remove orphan %s: %w", docID, err)
		}
		removed += n
	}
	return removed, nil
}

func (idx *Indexer) removeOrphan(ctx context.Context, docID string) (int, error) {
	unlock := idx.locks.Lock(docID)
	defer unlock()
	d, err := idx.storage.GetDocument(ctx, docID)
	switch {
	case err == nil && d.Status == models.StatusIndexed:
		return 0, nil
	case err != nil && !errors.Is(err, models.ErrNotFound):
		return 0, err
	}
	if err := idx.removeEntries(ctx, docID); err != nil {
		return 0, err
	}
	if idx.logger != nil {
		idx.logger.Warn("indexer removed vectors of unindexed document", zap.String("doc_id", docID))
	}
	return 1, nil
}

func (idx *Indexer) rebuildDocument(ctx context.Context, d *models.Document, indexed int) (int, error) {
	unlock := idx.locks.Lock(d.ID)
	defer unlock()

	switch d.Status {
	case models.StatusPending:
		if err := idx.removeEntries(ctx, d.ID); err != nil {
			return 0, err
		}
		return 0, idx.storage.MarkStatus(ctx, d.ID, models.StatusFailed, "ingestion interrupted")
	case models.StatusIndexed:
	default:
		return 0, nil
	}

	chunks, err := idx.storage.GetChunksByDocumentID(ctx, d.ID)
	if err != nil {
		return 0, err
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.IndexChunks(ctx, chunks); err != nil {
			return 0, err
		}
	}
	complete := indexed == len(chunks)
	for _, c := range chunks {
		if !complete {
			break
		}
		sum, ok := idx.vectorIndex.EntryChecksum(c.ID)
		complete = ok && sum == vector.Checksum(c.Text)
	}
	if complete {
		return 0, nil
	}
	if _, err := idx.vectorIndex.RemoveDocument(ctx, d.ID); err != nil {
		return 0, err
	}
	vecs, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}
	entries := make([]vector.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vector.Entry{ChunkID: c.ID, DocumentID: d.ID, Vector: vecs[i], Checksum: vector.Checksum(c.Text)}
	}
	if err := idx.vectorIndex.Add(ctx, entries); err != nil {
		return 0, err
	}
	return 1, nil
}
