package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/shoel/internal/models"
)

func sampleSearchResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Answer:   "ההרשמה נסגרת במרץ",
		Provider: "gemini",
		Sources: []models.Source{
			{
				ChunkID: "d1_p3_c0", DocumentID: "d1", Score: 0.91,
				Text:     "מועד ההרשמה\nנסגר   בחודש מרץ",
				Metadata: models.SourceMetadata{Page: 3, Filename: "guide.pdf"},
			},
			{
				ChunkID: "d2_p1_c0", DocumentID: "d2", Score: 0.5,
				Text:     strings.Repeat("א", 300),
				Metadata: models.SourceMetadata{Page: 1},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteAnswer_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleSearchResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"ההרשמה נסגרת במרץ",
		"[1] guide.pdf, page 3 (score 0.910)",
		"מועד ההרשמה נסגר בחודש מרץ",
		"[2] d2, page 1",
		"(provider: gemini)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("א", sourceSnippetLen+1)) {
		t.Error("long source text should be truncated")
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	resp := sampleSearchResponse()
	if err := WriteAnswer(&buf, resp, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Answer != resp.Answer || len(decoded.Sources) != 2 || decoded.Sources[0].Metadata.Page != 3 {
		t.Errorf("unexpected decoded response: %+v", decoded)
	}
	if !strings.Contains(buf.String(), "ההרשמה") {
		t.Error("JSON output should keep Hebrew unescaped")
	}
}

func TestWriteAnswer_NoSources(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.SearchResponse{Answer: "המידע אינו מופיע במסמכים שנסרקו", Sources: []models.Source{}}
	if err := WriteAnswer(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "Sources:") {
		t.Errorf("no sources section expected:\n%s", buf.String())
	}
}

func TestWriteChatTurn(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.ChatResponse{SessionID: "s1", Answer: "500 שקלים", History: []models.Turn{{Role: models.RoleUser, Text: "כמה"}}}
	if err := WriteChatTurn(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "500 שקלים") {
		t.Errorf("unexpected output: %s", buf.String())
	}
	buf.Reset()
	if err := WriteChatTurn(&buf, resp, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"session_id": "s1"`) {
		t.Errorf("unexpected JSON: %s", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	st := &models.StatusResponse{
		Status: "ok", Documents: 2, Chunks: 9, VectorIndexType: "memory", VectorIndexSize: 9,
		Embedder: "hash", ActiveProvider: "groq", Providers: []string{"gemini", "groq"}, DiskUsageBytes: 1024,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"documents:          2", "active_provider:    groq", "providers:          gemini, groq"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteIngest(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.IngestResponse{DocumentID: "abc", Status: models.StatusIndexed, TotalChunks: 4}
	if err := WriteIngest(&buf, "guide.pdf", resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "guide.pdf: abc (indexed, 4 chunks)\n" {
		t.Errorf("got %q", got)
	}
}
