package fileid

import (
	"testing"

	"github.com/google/uuid"
)

func TestForPath(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"identical", "/inbox/exam.pdf", "/inbox/exam.pdf", true},
		{"trailing slash", "/inbox/guides", "/inbox/guides/", true},
		{"dot segment", "/inbox/./exam.pdf", "/inbox/exam.pdf", true},
		{"different files", "/inbox/a.pdf", "/inbox/b.pdf", false},
		{"hebrew names", "/inbox/מבחן.pdf", "/inbox/מבחן.pdf", true},
		{"case matters", "/inbox/A.pdf", "/inbox/a.pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForPath(tt.a) == ForPath(tt.b)
			if got != tt.same {
				t.Errorf("ForPath(%q) == ForPath(%q) is %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}

func TestForPath_isNameBasedUUID(t *testing.T) {
	id, err := uuid.Parse(ForPath("/inbox/exam.pdf"))
	if err != nil {
		t.Fatalf("not a UUID: %v", err)
	}
	if id.Version() != 5 {
		t.Errorf("version = %d, want 5", id.Version())
	}
	if ForPath("/inbox/exam.pdf") == uuid.NewSHA1(uuid.NameSpaceURL, []byte("/inbox/exam.pdf")).String() {
		t.Error("IDs should be scoped to their own namespace")
	}
}
