package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hyperjump/shoel/internal/extract"
	"github.com/hyperjump/shoel/internal/fileid"
	"github.com/hyperjump/shoel/internal/models"
	"go.uber.org/zap"
)

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// IngestFile ingests the PDF at path under an id derived from its absolute
// path, so re-ingesting the same file replaces the previous version. A file
// already indexed with the same mtime and size is skipped and its stored
// document returned.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*models.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !extract.IsSupported(absPath) {
		return nil, fmt.Errorf("%w: unsupported file type %q (only PDF)", models.ErrInvalidRequest, filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrInvalidRequest, absPath)
	}

	docID := fileid.ForPath(absPath)
	if doc, ok := idx.unchanged(ctx, docID, absPath, info); ok {
		if idx.logger != nil {
			idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		}
		return doc, nil
	}

	meta := map[string]string{
		metaKeySourcePath: absPath,
		// strings keep UnixNano exact
		metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
		metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
	}
	unlock := idx.locks.Lock(docID)
	defer unlock()
	if err := idx.removeEntries(ctx, docID); err != nil {
		return nil, err
	}
	pages, err := idx.extractor.ExtractFile(absPath)
	if err != nil {
		return idx.recordFailure(ctx, &models.Document{ID: docID, Filename: filepath.Base(absPath), Metadata: meta}, err)
	}
	doc, err := idx.ingestLocked(ctx, docID, filepath.Base(absPath), pages, IngestOptions{Metadata: meta})
	if err == nil && idx.logger != nil {
		idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("doc_id", docID))
	}
	return doc, err
}

// unchanged returns the stored document when it was indexed from absPath with the same mtime and size.
func (idx *Indexer) unchanged(ctx context.Context, docID, absPath string, info os.FileInfo) (*models.Document, bool) {
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.Status != models.StatusIndexed {
		return nil, false
	}
	if doc.Metadata[metaKeySourcePath] != absPath {
		return nil, false
	}
	if doc.Metadata[metaKeySourceMtime] != strconv.FormatInt(info.ModTime().UnixNano(), 10) ||
		doc.Metadata[metaKeySourceSize] != strconv.FormatInt(info.Size(), 10) {
		return nil, false
	}
	return doc, true
}

// IngestDirectory walks dir recursively and ingests each PDF. Files that fail
// extraction are recorded as failed documents and do not stop the walk.
// Returns the number of files ingested or skipped as unchanged.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extract.IsSupported(path) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		doc, ingestErr := idx.IngestFile(ctx, path)
		if ingestErr != nil {
			if doc != nil {
				// recorded as failed; keep going
				return nil
			}
			return ingestErr
		}
		n++
		return nil
	})
	return n, err
}

// DeleteFile removes the document ingested from path, if any.
func (idx *Indexer) DeleteFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return idx.Delete(ctx, fileid.ForPath(absPath))
}
