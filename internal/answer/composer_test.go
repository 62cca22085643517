package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/shoel/internal/llm"
	"github.com/hyperjump/shoel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGenerator struct {
	prompt string
	text   string
	err    error
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, string, error) {
	g.prompt = prompt
	if g.err != nil {
		return "", "", g.err
	}
	return g.text, "fake", nil
}

var hits = []models.RetrievalHit{
	{ChunkID: "d1_p3_c0", DocumentID: "d1", Filename: "food.pdf", PageNumber: 3, Text: "יש לסמן אלרגנים באותיות מודגשות", Score: 0.9},
	{ChunkID: "d2_p1_c0", DocumentID: "d2", PageNumber: 1, Text: "תקנות כלליות", Score: 0.5},
}

func TestComposer_BuildPrompt(t *testing.T) {
	c := NewComposer(&recordingGenerator{}, WithMaxHistory(2))
	history := []models.Turn{
		{Role: models.RoleUser, Text: "turn-1"},
		{Role: models.RoleAssistant, Text: "turn-2"},
		{Role: models.RoleUser, Text: "turn-3"},
	}
	prompt := c.BuildPrompt("  מה הדרישות לסימון אלרגנים?  ", hits, history)

	assert.Contains(t, prompt, MissingInfo)
	assert.Contains(t, prompt, "[מקור 1: food.pdf, עמוד 3]\nיש לסמן אלרגנים באותיות מודגשות")
	assert.Contains(t, prompt, "[מקור 2: d2, עמוד 1]", "documents without filename fall back to id")
	assert.Contains(t, prompt, "מה הדרישות לסימון אלרגנים?\n")
	assert.NotContains(t, prompt, "turn-1", "only the most recent turns are included")
	assert.Contains(t, prompt, "עוזר: turn-2")
	assert.Contains(t, prompt, "משתמש: turn-3")

	// history precedes passages, which precede the question
	iHistory := strings.Index(prompt, "turn-2")
	iPassage := strings.Index(prompt, "food.pdf")
	iQuestion := strings.Index(prompt, "מה הדרישות")
	assert.True(t, iHistory < iPassage && iPassage < iQuestion)
}

func TestComposer_BuildPrompt_NoHistoryNoHits(t *testing.T) {
	c := NewComposer(&recordingGenerator{})
	prompt := c.BuildPrompt("שאלה", nil, nil)
	assert.NotContains(t, prompt, "היסטוריית השיחה")
	assert.Contains(t, prompt, "לא נמצאו קטעים רלוונטיים")
}

func TestComposer_Answer(t *testing.T) {
	g := &recordingGenerator{text: "  יש לסמן אלרגנים.\n"}
	c := NewComposer(g)

	ans, err := c.Answer(context.Background(), "שאלה", hits, nil)
	require.NoError(t, err)
	assert.Equal(t, "יש לסמן אלרגנים.", ans.Text)
	assert.Equal(t, "fake", ans.Provider)
	assert.Equal(t, hits, ans.Sources, "sources are exactly the hits offered")
	assert.Contains(t, g.prompt, "שאלה")
}

func TestComposer_AnswerWithoutHitsStillAsks(t *testing.T) {
	g := &recordingGenerator{text: MissingInfo}
	ans, err := NewComposer(g).Answer(context.Background(), "שאלה", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, g.prompt)
	assert.Equal(t, MissingInfo, ans.Text)
	assert.Empty(t, ans.Sources)
}

func TestComposer_GenerationFailure(t *testing.T) {
	chain := llm.NewFallback([]llm.Provider{
		llm.NewFuncProvider("primary", func(context.Context, string) (string, error) { return "", errors.New("timeout") }),
		llm.NewFuncProvider("secondary", func(context.Context, string) (string, error) { return "", errors.New("503") }),
	})
	ans, err := NewComposer(chain).Answer(context.Background(), "שאלה", hits, nil)
	assert.Nil(t, ans)
	assert.ErrorIs(t, err, models.ErrGenerationFailed)
}

func TestComposer_FallbackProvider(t *testing.T) {
	chain := llm.NewFallback([]llm.Provider{
		llm.NewFuncProvider("primary", func(context.Context, string) (string, error) { return "", errors.New("timeout") }),
		llm.NewFuncProvider("secondary", func(context.Context, string) (string, error) { return "תשובה", nil }),
	})
	ans, err := NewComposer(chain).Answer(context.Background(), "שאלה", hits, nil)
	require.NoError(t, err)
	assert.Equal(t, "secondary", ans.Provider)
}
