// Package cli formats API responses for the terminal and talks to a running server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shoel/internal/models"
	"github.com/hyperjump/shoel/internal/search"
)

// OutputFormat selects how responses are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// sourceSnippetLen bounds the passage preview printed under each source.
const sourceSnippetLen = 160

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteAnswer writes a search response: the answer, then its numbered sources.
func WriteAnswer(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	writeSources(w, resp.Sources)
	if resp.Provider != "" {
		fmt.Fprintf(w, "\n(provider: %s)\n", resp.Provider)
	}
	return nil
}

// WriteChatTurn writes the assistant's reply to one chat message.
func WriteChatTurn(w io.Writer, resp *models.ChatResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	writeSources(w, resp.Sources)
	return nil
}

func writeSources(w io.Writer, sources []models.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range sources {
		name := s.Metadata.Filename
		if name == "" {
			name = s.DocumentID
		}
		fmt.Fprintf(w, "  [%d] %s, page %d (score %.3f)\n", i+1, name, s.Metadata.Page, s.Score)
		fmt.Fprintf(w, "      %s\n", search.Highlight(s.Text, sourceSnippetLen))
	}
}

// WriteStatus writes the server status report.
func WriteStatus(w io.Writer, st *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d   # documents in the store\n", st.Documents)
	fmt.Fprintf(w, "chunks:             %d   # text chunks\n", st.Chunks)
	fmt.Fprintf(w, "vector_index_size:  %d   # vectors in the index\n", st.VectorIndexSize)
	fmt.Fprintf(w, "vector_index_type:  %s\n", st.VectorIndexType)
	fmt.Fprintf(w, "embedder:           %s\n", st.Embedder)
	fmt.Fprintf(w, "hybrid_retrieval:   %t\n", st.HybridRetrieval)
	fmt.Fprintf(w, "active_provider:    %s\n", st.ActiveProvider)
	if len(st.Providers) > 0 {
		fmt.Fprintf(w, "providers:          %s\n", strings.Join(st.Providers, ", "))
	}
	fmt.Fprintf(w, "sessions:           %d\n", st.Sessions)
	fmt.Fprintf(w, "disk_usage_bytes:   %d   # storage + indices on disk\n", st.DiskUsageBytes)
	return nil
}

// WriteIngest writes the outcome of one ingestion.
func WriteIngest(w io.Writer, name string, resp *models.IngestResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%s: %s (%s, %d chunks)\n", name, resp.DocumentID, resp.Status, resp.TotalChunks)
	return nil
}
