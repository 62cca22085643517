package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/hyperjump/shoel/pkg/utils"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "שם המזון")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "שם המזון")
	if len(a) != 64 {
		t.Fatalf("dimension %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text should embed identically")
		}
	}
}

func TestHashEmbedder_UnitLength(t *testing.T) {
	e := NewHashEmbedder(128)
	v, _ := e.Embed(context.Background(), "רשימת רכיבים ואלרגנים")
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("norm^2 = %f", sum)
	}
}

func TestHashEmbedder_SimilarTextsCloser(t *testing.T) {
	e := NewHashEmbedder(384)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "סימון אלרגנים")
	near, _ := e.Embed(ctx, "חובת סימון אלרגנים במזון ארוז")
	far, _ := e.Embed(ctx, "תאריך תפוגה של מוצרי חלב")
	if utils.Dot(q, near) <= utils.Dot(q, far) {
		t.Errorf("expected overlapping text to score higher: near=%f far=%f", utils.Dot(q, near), utils.Dot(q, far))
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder(8)
	v, err := e.Embed(context.Background(), "   ")
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestHashEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8).EmbedBatch(ctx, []string{"a"}); err == nil {
		t.Error("expected context error")
	}
}
