package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/shoel/internal/config"
	"github.com/hyperjump/shoel/internal/models"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "sub", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

func testDocument(id string) *models.Document {
	return &models.Document{
		ID:       id,
		Filename: "חוברת.pdf",
		Status:   models.StatusPending,
		Pages: []models.PageText{
			{PageNumber: 1, RawText: "raw one", NormalizedText: "עמוד ראשון"},
			{PageNumber: 2, RawText: "raw two", NormalizedText: "עמוד שני"},
		},
		Metadata: map[string]string{"chapter": "3"},
	}
}

func TestStorage_DocumentLifecycle(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := testDocument("doc1")
			if err := store.PutDocument(ctx, doc); err != nil {
				t.Fatal(err)
			}
			if doc.CreatedAt.IsZero() {
				t.Error("CreatedAt should be set")
			}

			got, err := store.GetDocument(ctx, "doc1")
			if err != nil {
				t.Fatal(err)
			}
			if got.Filename != "חוברת.pdf" || got.Status != models.StatusPending {
				t.Errorf("got %+v", got)
			}
			if len(got.Pages) != 2 || got.Pages[1].NormalizedText != "עמוד שני" {
				t.Errorf("pages not stored: %+v", got.Pages)
			}
			if got.Metadata["chapter"] != "3" {
				t.Errorf("metadata not stored: %v", got.Metadata)
			}

			if err := store.MarkStatus(ctx, "doc1", models.StatusFailed, "no text"); err != nil {
				t.Fatal(err)
			}
			got, _ = store.GetDocument(ctx, "doc1")
			if got.Status != models.StatusFailed || got.Error != "no text" {
				t.Errorf("status not updated: %s %q", got.Status, got.Error)
			}

			if err := store.DeleteDocument(ctx, "doc1"); err != nil {
				t.Fatal(err)
			}
			if _, err := store.GetDocument(ctx, "doc1"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestStorage_NotFound(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.GetDocument(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("GetDocument: %v", err)
			}
			if err := store.MarkStatus(ctx, "missing", models.StatusIndexed, ""); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("MarkStatus: %v", err)
			}
			if err := store.DeleteDocument(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("DeleteDocument: %v", err)
			}
			if _, err := store.GetChunk(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("GetChunk: %v", err)
			}
			list, err := store.ListDocuments(ctx, 0, 0)
			if err != nil || list == nil || len(list) != 0 {
				t.Errorf("ListDocuments on empty store: %v %v", list, err)
			}
		})
	}
}

func TestStorage_ListIsSummary(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			for i, id := range []string{"b", "a", "c"} {
				doc := testDocument(id)
				doc.CreatedAt = base.Add(time.Duration(i) * time.Minute)
				if err := store.PutDocument(ctx, doc); err != nil {
					t.Fatal(err)
				}
			}
			_ = store.PutChunks(ctx, []*models.Chunk{{ID: "a_p1_c0", DocumentID: "a", PageNumber: 1, Text: "x"}})

			list, err := store.ListDocuments(ctx, 0, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 3 {
				t.Fatalf("expected 3 docs, got %d", len(list))
			}
			for i, want := range []string{"b", "a", "c"} {
				if list[i].ID != want {
					t.Errorf("list[%d]=%s, want %s", i, list[i].ID, want)
				}
				if len(list[i].Pages) != 0 {
					t.Errorf("list entry %s carries pages", list[i].ID)
				}
			}
			if list[1].ChunkCount != 1 {
				t.Errorf("ChunkCount=%d, want 1", list[1].ChunkCount)
			}

			paged, _ := store.ListDocuments(ctx, 1, 1)
			if len(paged) != 1 || paged[0].ID != "a" {
				t.Errorf("paged list: %+v", paged)
			}
		})
	}
}

func TestStorage_Chunks(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = store.PutDocument(ctx, testDocument("d1"))

			chunks := []*models.Chunk{
				{ID: "d1_p2_c1", DocumentID: "d1", PageNumber: 2, Index: 1, Text: "שני"},
				{ID: "d1_p1_c0", DocumentID: "d1", PageNumber: 1, Index: 0, Text: "ראשון"},
			}
			if err := store.PutChunks(ctx, chunks); err != nil {
				t.Fatal(err)
			}

			list, err := store.GetChunksByDocumentID(ctx, "d1")
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 2 || list[0].ID != "d1_p1_c0" {
				t.Errorf("expected chunks ordered by index, got %+v", list)
			}

			got, err := store.GetChunk(ctx, "d1_p2_c1")
			if err != nil {
				t.Fatal(err)
			}
			if got.Text != "שני" || got.PageNumber != 2 {
				t.Errorf("got %+v", got)
			}

			err = store.PutChunks(ctx, []*models.Chunk{
				{ID: "d1_p3_c2", DocumentID: "d1", PageNumber: 3, Index: 2, Text: "new"},
				{ID: "d1_p1_c0", DocumentID: "d1", PageNumber: 1, Index: 0, Text: "dup"},
			})
			if !errors.Is(err, models.ErrDuplicateKey) {
				t.Fatalf("expected ErrDuplicateKey, got %v", err)
			}
			if n, _ := store.CountChunks(ctx); n != 2 {
				t.Errorf("failed PutChunks must insert nothing, count=%d", n)
			}

			if err := store.DeleteChunksByDocumentID(ctx, "d1"); err != nil {
				t.Fatal(err)
			}
			list, _ = store.GetChunksByDocumentID(ctx, "d1")
			if len(list) != 0 {
				t.Errorf("expected 0 chunks after delete, got %d", len(list))
			}
		})
	}
}

func TestStorage_DeleteDocumentRemovesChunks(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = store.PutDocument(ctx, testDocument("d1"))
			_ = store.PutChunks(ctx, []*models.Chunk{{ID: "d1_p1_c0", DocumentID: "d1", PageNumber: 1, Text: "x"}})
			if err := store.DeleteDocument(ctx, "d1"); err != nil {
				t.Fatal(err)
			}
			if _, err := store.GetChunk(ctx, "d1_p1_c0"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("chunk survived document delete: %v", err)
			}
		})
	}
}

func TestStorage_Counts(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			n, err := store.CountDocuments(ctx)
			if err != nil || n != 0 {
				t.Errorf("CountDocuments: %v, %d", err, n)
			}
			_ = store.PutDocument(ctx, testDocument("x"))
			// replacing keeps one row
			_ = store.PutDocument(ctx, testDocument("x"))
			n, _ = store.CountDocuments(ctx)
			if n != 1 {
				t.Errorf("expected 1 document, got %d", n)
			}
		})
	}
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = store.PutDocument(ctx, testDocument("d1"))
	_ = store.MarkStatus(ctx, "d1", models.StatusIndexed, "")
	_ = store.Close()

	store, err = NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	got, err := store.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusIndexed || len(got.Pages) != 2 {
		t.Errorf("document not persisted: %+v", got)
	}
}

func TestNew(t *testing.T) {
	s, err := New(config.StorageConfig{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStorage); !ok {
		t.Errorf("expected MemoryStorage, got %T", s)
	}
	s, err = New(config.StorageConfig{Backend: "sqlite", DatabasePath: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStorage); !ok {
		t.Errorf("expected SQLiteStorage, got %T", s)
	}
	if _, err := New(config.StorageConfig{Backend: "postgres"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
