// Package answer builds grounded Hebrew prompts and generates answers with source attribution.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shoel/internal/models"
	"go.uber.org/zap"
)

// MissingInfo is the reply the model is told to give when the passages do not answer the question.
const MissingInfo = "המידע אינו מופיע במסמכים שנסרקו"

const instruction = `אתה מומחה לניתוח מסמכים רגולטוריים ומשפטיים. ענה בעברית, בצורה מקיפה, מדויקת ומובנית, אך ורק על סמך הקטעים המצורפים.
כללים:
1. היצמד לקטעים. אל תשתמש בידע קודם.
2. אם המידע מופיע בכמה קטעים, שלב את כולם לתשובה אחת.
3. השתמש בנקודות או במספור כשיש רשימת תנאים או דרישות.
4. אם הקטעים אינם מכילים מספיק מידע כדי לענות, השב: "` + MissingInfo + `".
5. בסוף התשובה הוסף פסקה "מקורות:" ופרט את המסמכים ומספרי העמודים עליהם התבססת.`

// Generator produces text for a prompt and names the provider that answered.
type Generator interface {
	Generate(ctx context.Context, prompt string) (text string, provider string, err error)
}

// Composer turns retrieval hits and chat history into an answer.
type Composer struct {
	generator  Generator
	maxHistory int
	logger     *zap.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithMaxHistory limits how many recent turns go into the prompt.
func WithMaxHistory(n int) Option {
	return func(c *Composer) { c.maxHistory = n }
}

// WithLogger sets a logger for composer events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

// NewComposer returns a Composer that generates through g. By default the six
// most recent history turns are included.
func NewComposer(g Generator, opts ...Option) *Composer {
	c := &Composer{generator: g, maxHistory: 6}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildPrompt assembles the instruction, the most recent history turns, the
// passages labelled with filename and page, and the question.
func (c *Composer) BuildPrompt(query string, hits []models.RetrievalHit, history []models.Turn) string {
	var sb strings.Builder
	sb.WriteString("### הוראות\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\n")

	if turns := recent(history, c.maxHistory); len(turns) > 0 {
		sb.WriteString("### היסטוריית השיחה\n")
		for _, t := range turns {
			label := "משתמש"
			if t.Role == models.RoleAssistant {
				label = "עוזר"
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, t.Text)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### קטעים מהמסמכים\n")
	if len(hits) == 0 {
		sb.WriteString("(לא נמצאו קטעים רלוונטיים)\n")
	}
	for i, h := range hits {
		fmt.Fprintf(&sb, "[מקור %d: %s, עמוד %d]\n%s\n\n", i+1, sourceName(h), h.PageNumber, h.Text)
	}

	sb.WriteString("\n### שאלה\n")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\n### תשובה\n")
	return sb.String()
}

// Answer generates an answer for query. Sources are exactly the hits passed in,
// in order. With no hits the model is still asked and is instructed to reply
// with MissingInfo. Generation errors are returned unchanged and no answer is produced.
func (c *Composer) Answer(ctx context.Context, query string, hits []models.RetrievalHit, history []models.Turn) (*models.Answer, error) {
	prompt := c.BuildPrompt(query, hits, history)
	text, provider, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if c.logger != nil {
		c.logger.Debug("answer composed", zap.String("provider", provider), zap.Int("sources", len(hits)), zap.Int("prompt_chars", len(prompt)))
	}
	sources := make([]models.RetrievalHit, len(hits))
	copy(sources, hits)
	return &models.Answer{
		Text:     strings.TrimSpace(text),
		Sources:  sources,
		Provider: provider,
	}, nil
}

func recent(history []models.Turn, n int) []models.Turn {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func sourceName(h models.RetrievalHit) string {
	if h.Filename != "" {
		return h.Filename
	}
	return h.DocumentID
}
