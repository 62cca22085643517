package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/shoel/internal/extract/extracttest"
	"github.com/hyperjump/shoel/internal/models"
	"golang.org/x/text/encoding/charmap"
)

func TestExtractPages(t *testing.T) {
	content := extracttest.PDF([]byte("Hello page one\nsecond line"), nil, []byte("Page (three)"))
	pages, err := NewExtractor().ExtractPages(content)
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	for i, p := range pages {
		if p.PageNumber != i+1 {
			t.Errorf("page %d has number %d", i, p.PageNumber)
		}
		if p.NormalizedText != "" {
			t.Errorf("extractor must not normalize: %q", p.NormalizedText)
		}
	}
	if !strings.Contains(pages[0].RawText, "Hello page one") || !strings.Contains(pages[0].RawText, "second line") {
		t.Errorf("page 1 raw text = %q", pages[0].RawText)
	}
	if strings.TrimSpace(pages[1].RawText) != "" {
		t.Errorf("page 2 should be empty, got %q", pages[1].RawText)
	}
	if !strings.Contains(pages[2].RawText, "Page (three)") {
		t.Errorf("page 3 raw text = %q", pages[2].RawText)
	}
}

func TestExtractPages_LegacyHebrewEncoding(t *testing.T) {
	// Hebrew stored as cp1255 bytes under a WinAnsi font comes out as Latin letters.
	hebrew, err := charmap.Windows1255.NewEncoder().Bytes([]byte("שלום עולם"))
	if err != nil {
		t.Fatal(err)
	}
	pages, err := NewExtractor().ExtractPages(extracttest.PDF(hebrew))
	if err != nil {
		t.Fatal(err)
	}
	want, _ := charmap.Windows1252.NewDecoder().Bytes(hebrew)
	if !strings.Contains(pages[0].RawText, string(want)) {
		t.Errorf("raw text = %q, want it to contain %q", pages[0].RawText, want)
	}
}

func TestExtractPages_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("just some text that is not a pdf at all")},
		{"truncated", extracttest.PDF([]byte("hello"))[:60]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor().ExtractPages(tt.content)
			if !errors.Is(err, models.ErrExtractionFailed) {
				t.Errorf("expected ErrExtractionFailed, got %v", err)
			}
		})
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.PDF")
	if err := os.WriteFile(path, extracttest.PDF([]byte("file text")), 0644); err != nil {
		t.Fatal(err)
	}
	pages, err := NewExtractor().ExtractFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || !strings.Contains(pages[0].RawText, "file text") {
		t.Errorf("got %+v", pages)
	}

	if _, err := NewExtractor().ExtractFile(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for nonexistent file")
	}
	txt := filepath.Join(dir, "notes.txt")
	_ = os.WriteFile(txt, []byte("text"), 0644)
	if _, err := NewExtractor().ExtractFile(txt); !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for .txt, got %v", err)
	}
}

func TestIsSupported(t *testing.T) {
	tests := map[string]bool{
		"a.pdf":      true,
		"b.PDF":      true,
		"c.docx":     false,
		"noext":      false,
		"dir/x.pdf~": false,
	}
	for path, want := range tests {
		if got := IsSupported(path); got != want {
			t.Errorf("IsSupported(%q) = %v, want %v", path, got, want)
		}
	}
}
