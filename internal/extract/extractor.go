// Package extract reads raw page text out of PDF files.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shoel/internal/models"
)

// Extractor extracts raw page text from PDF documents.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// IsSupported reports whether path has an extension the extractor reads.
func IsSupported(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}

// ExtractFile reads the PDF at path and returns one PageText per page.
func (e *Extractor) ExtractFile(path string) ([]models.PageText, error) {
	if !IsSupported(path) {
		return nil, fmt.Errorf("%w: unsupported file type %q (only PDF)", models.ErrInvalidRequest, filepath.Ext(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractPages(content)
}

// ExtractPages returns the raw text of every page, numbered from 1. Pages
// without text are kept with an empty RawText so numbering matches the file.
// Unreadable input fails with models.ErrExtractionFailed.
func (e *Extractor) ExtractPages(content []byte) ([]models.PageText, error) {
	texts, err := extractPDF(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}
	pages := make([]models.PageText, len(texts))
	for i, t := range texts {
		pages[i] = models.PageText{PageNumber: i + 1, RawText: t}
	}
	return pages, nil
}
