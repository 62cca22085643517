package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/shoel/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/search" {
			http.Error(w, "unexpected route", http.StatusNotFound)
			return
		}
		var req models.SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query != "מתי" || req.TopK != 3 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(models.SearchResponse{Answer: "במרץ", Provider: "gemini", Sources: []models.Source{}})
	})
	resp, err := c.Search(context.Background(), models.SearchRequest{Query: "מתי", TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "במרץ" || resp.Provider != "gemini" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":"generation failed: all providers failed"}`)
	})
	_, err := c.Chat(context.Background(), models.ChatRequest{Message: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "generation failed: all providers failed" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestClient_UploadPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		content, _ := io.ReadAll(f)
		if header.Filename != "guide.pdf" || string(content) != "%PDF-1.4 test" || r.FormValue("metadata") != `{"chapter":"2"}` {
			http.Error(w, "unexpected upload", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.IngestResponse{DocumentID: "d1", Status: models.StatusIndexed, TotalChunks: 3})
	})
	resp, err := c.UploadPDF(context.Background(), path, map[string]string{"chapter": "2"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.DocumentID != "d1" || resp.TotalChunks != 3 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClient_WatchDirectories(t *testing.T) {
	dirs := []string{"/inbox"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"directories": dirs})
		case http.MethodPost:
			var body struct {
				Path string `json:"path"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			dirs = append(dirs, body.Path)
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			if r.URL.Query().Get("path") != "/inbox" {
				http.Error(w, "unexpected path", http.StatusBadRequest)
				return
			}
			dirs = dirs[1:]
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "removed"})
		}
	})
	ctx := context.Background()
	if err := c.AddWatchDirectory(ctx, "/scans", true); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveWatchDirectory(ctx, "/inbox"); err != nil {
		t.Fatal(err)
	}
	got, err := c.WatchDirectories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "/scans" {
		t.Errorf("directories: got %v", got)
	}
}
