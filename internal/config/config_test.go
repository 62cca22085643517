package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  backend: sqlite
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("backend = %s", cfg.Storage.Backend)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/documents.db"
watch:
  directories: ["./inbox"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "documents.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if want := filepath.Join(dir, "data", "vectors.idx"); cfg.Storage.VectorIndexPath != want {
		t.Errorf("vector_index_path = %s, want %s", cfg.Storage.VectorIndexPath, want)
	}
	if cfg.Storage.KeywordIndexPath != "" {
		t.Errorf("keyword_index_path should stay empty, got %s", cfg.Storage.KeywordIndexPath)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "inbox") {
		t.Errorf("watch directories: %v", cfg.Watch.Directories)
	}
}

func TestDefault(t *testing.T) {
	dir := t.TempDir()
	cfg := Default(dir)
	if cfg.Storage.DatabasePath != filepath.Join(dir, "data", "shoel.db") {
		t.Errorf("database_path = %s", cfg.Storage.DatabasePath)
	}
	if cfg.Storage.VectorIndexPath != filepath.Join(dir, "data", "vectors.idx") {
		t.Errorf("vector_index_path = %s", cfg.Storage.VectorIndexPath)
	}
	if cfg.Retrieval.ChunkSize != 800 || cfg.Retrieval.DefaultTopK != 7 {
		t.Errorf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if len(cfg.Generation.Providers) != 2 {
		t.Errorf("expected the two default providers, got %+v", cfg.Generation.Providers)
	}
}

func TestLoad_rejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"overlap not smaller", "retrieval:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"negative size", "retrieval:\n  chunk_size: -1\n"},
		{"bad backend", "storage:\n  backend: mongo\n"},
		{"bad weight", "retrieval:\n  keyword_weight: 2\n"},
		{"provider without name", "generation:\n  providers:\n    - type: gemini\n"},
		{"bad provider type", "generation:\n  providers:\n    - name: x\n      type: claude\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Retrieval.ChunkSize != 800 || cfg.Retrieval.ChunkOverlap != 100 {
		t.Errorf("default chunking: %d/%d", cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	}
	if cfg.Retrieval.DefaultTopK != 7 || cfg.Retrieval.MaxTopK != 50 {
		t.Errorf("default top_k: %d/%d", cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK)
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dimensions != 384 || cfg.Embedding.BatchSize != 64 {
		t.Errorf("default embedding: %+v", cfg.Embedding)
	}
	if cfg.Vector.IndexType != "memory" {
		t.Errorf("default index type: %s", cfg.Vector.IndexType)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("default backend: %s", cfg.Storage.Backend)
	}
	if len(cfg.Generation.Providers) != 2 {
		t.Fatalf("default providers: %v", cfg.Generation.Providers)
	}
	if p := cfg.Generation.Providers[0]; p.Name != "gemini" || p.APIKeyEnv != "GOOGLE_API_KEY" {
		t.Errorf("primary provider: %+v", p)
	}
	if p := cfg.Generation.Providers[1]; p.Name != "groq" || p.Type != ProviderOpenAI || p.BaseURL == "" {
		t.Errorf("secondary provider: %+v", p)
	}
	if cfg.Generation.Timeout() != 60*time.Second {
		t.Errorf("timeout: %v", cfg.Generation.Timeout())
	}
	if cfg.Session.TTL() != time.Hour || cfg.Session.SweepInterval() != time.Minute {
		t.Errorf("session: %+v", cfg.Session)
	}
	if len(cfg.Watch.Extensions) != 1 || cfg.Watch.Extensions[0] != ".pdf" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
}

func TestApplyDefaults_keepsExplicitOverlapZero(t *testing.T) {
	cfg := &Config{Retrieval: RetrievalConfig{ChunkSize: 300}}
	ApplyDefaults(cfg)
	if cfg.Retrieval.ChunkOverlap != 0 {
		t.Errorf("overlap = %d, want 0 when chunk_size is explicit", cfg.Retrieval.ChunkOverlap)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestProviderConfig_APIKey(t *testing.T) {
	t.Setenv("SHOEL_TEST_KEY", "  secret  ")
	p := ProviderConfig{APIKeyEnv: "SHOEL_TEST_KEY"}
	if p.APIKey() != "secret" {
		t.Errorf("APIKey() = %q", p.APIKey())
	}
	if (&ProviderConfig{}).APIKey() != "" {
		t.Error("no env var name should give empty key")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SHOEL_ENV_A=fromfile\nSHOEL_ENV_B=fromfile\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHOEL_ENV_B", "preset")
	t.Cleanup(func() { _ = os.Unsetenv("SHOEL_ENV_A") })
	if err := LoadEnv(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("SHOEL_ENV_A") != "fromfile" {
		t.Errorf("SHOEL_ENV_A = %q", os.Getenv("SHOEL_ENV_A"))
	}
	if os.Getenv("SHOEL_ENV_B") != "preset" {
		t.Errorf("existing variable overridden: %q", os.Getenv("SHOEL_ENV_B"))
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
