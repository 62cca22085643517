package indexer

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperjump/shoel/internal/models"
)

func mustChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func rebuild(chunks []*models.Chunk, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch.Text)
			continue
		}
		b.WriteString(string([]rune(ch.Text)[overlap:]))
	}
	return b.String()
}

func TestNewChunker_Invalid(t *testing.T) {
	tests := []struct {
		size, overlap int
	}{
		{0, 0},
		{10, 10},
		{10, 11},
		{10, -1},
	}
	for _, tt := range tests {
		if _, err := NewChunker(tt.size, tt.overlap); !errors.Is(err, models.ErrInvalidRequest) {
			t.Errorf("NewChunker(%d, %d) error = %v, want ErrInvalidRequest", tt.size, tt.overlap, err)
		}
	}
}

func TestChunker_ChunkPage(t *testing.T) {
	c := mustChunker(t, 10, 2)
	chunks := c.ChunkPage("doc1", 3, strings.Repeat("א", 20))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantOffsets := []int{0, 8, 16}
	for i, ch := range chunks {
		if ch.DocumentID != "doc1" || ch.PageNumber != 3 {
			t.Errorf("chunk %d: doc=%s page=%d", i, ch.DocumentID, ch.PageNumber)
		}
		if ch.Index != i {
			t.Errorf("chunk %d Index=%d", i, ch.Index)
		}
		if ch.CharOffset != wantOffsets[i] {
			t.Errorf("chunk %d CharOffset=%d, want %d", i, ch.CharOffset, wantOffsets[i])
		}
		if ch.ID != ChunkID("doc1", 3, i) {
			t.Errorf("chunk %d ID=%s", i, ch.ID)
		}
	}
	if n := utf8.RuneCountInString(chunks[2].Text); n != 4 {
		t.Errorf("last chunk should be shorter, got %d runes", n)
	}
}

func TestChunker_ChunkPageEmpty(t *testing.T) {
	c := mustChunker(t, 5, 1)
	if chunks := c.ChunkPage("d", 1, ""); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestChunker_ShortPageSingleChunk(t *testing.T) {
	c := mustChunker(t, 800, 100)
	chunks := c.ChunkPage("d", 1, "שלום עולם")
	if len(chunks) != 1 || chunks[0].Text != "שלום עולם" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestChunker_Reconstruction(t *testing.T) {
	texts := []string{
		strings.Repeat("אבג דהו זחט יכל מנס עפצ קרש ת ", 40),
		strings.Repeat("x", 1234),
		"תקנה 1169 משנת 2011 בדבר מסירת מידע על מזון לצרכן, לרבות סימון אלרגנים ושם המזון.",
	}
	for _, size := range []int{10, 37, 100} {
		for _, overlap := range []int{0, 3, 9} {
			c := mustChunker(t, size, overlap)
			for _, text := range texts {
				chunks := c.ChunkPage("d", 1, text)
				if got := rebuild(chunks, overlap); got != text {
					t.Fatalf("size=%d overlap=%d: rebuild mismatch\n got %q\nwant %q", size, overlap, got, text)
				}
				for _, ch := range chunks {
					if utf8.RuneCountInString(ch.Text) > size {
						t.Fatalf("chunk longer than target: %d", utf8.RuneCountInString(ch.Text))
					}
				}
			}
		}
	}
}

func TestChunker_SnapsToWhitespace(t *testing.T) {
	c := mustChunker(t, 10, 2)
	// window [0,10) ends inside "גגגג"; the space at 8 is within the last fifth
	chunks := c.ChunkPage("d", 1, "אאאא בבב גגגג")
	if chunks[0].Text != "אאאא בבב " {
		t.Errorf("first chunk = %q", chunks[0].Text)
	}
}

func TestChunker_Deterministic(t *testing.T) {
	c := mustChunker(t, 50, 10)
	text := strings.Repeat("מזון ", 100)
	a := c.ChunkPage("d", 2, text)
	b := c.ChunkPage("d", 2, text)
	if len(a) != len(b) {
		t.Fatal("chunk counts differ")
	}
	for i := range a {
		if *a[i] != *b[i] {
			t.Errorf("chunk %d differs", i)
		}
	}
}

func TestChunker_ChunkPages(t *testing.T) {
	c := mustChunker(t, 10, 2)
	pages := []models.PageText{
		{PageNumber: 1, NormalizedText: strings.Repeat("א", 20)},
		{PageNumber: 2, NormalizedText: ""},
		{PageNumber: 3, NormalizedText: strings.Repeat("ב", 15)},
	}
	chunks := c.ChunkPages("doc", pages)
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d Index=%d", i, ch.Index)
		}
	}
	if chunks[3].PageNumber != 3 || chunks[3].ID != ChunkID("doc", 3, 0) {
		t.Errorf("page 3 first chunk: %+v", chunks[3])
	}
}
