package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiConfig configures a GeminiProvider. Endpoint overrides the API base URL.
type GeminiConfig struct {
	Name              string
	APIKey            string
	Model             string
	Endpoint          string
	RequestsPerSecond float64
}

// GeminiProvider calls the Gemini generateContent API.
type GeminiProvider struct {
	name    string
	model   string
	svc     *generativelanguage.Service
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiProvider creates a Gemini provider authenticated with an API key.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Name == "" {
		cfg.Name = "gemini"
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimSuffix(cfg.Endpoint, "/")+"/"))
	}
	svc, err := generativelanguage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create service: %w", err)
	}
	return &GeminiProvider{
		name:    cfg.Name,
		model:   strings.TrimPrefix(cfg.Model, "models/"),
		svc:     svc,
		limiter: newLimiter(cfg.RequestsPerSecond),
		logger:  logger,
	}, nil
}

// Name returns the configured provider name.
func (g *GeminiProvider) Name() string { return g.name }

// Generate sends prompt as a single user turn and joins the text parts of the first candidate.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := wait(ctx, g.limiter); err != nil {
		return "", err
	}
	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: prompt}},
		}},
	}
	resp, err := g.svc.Models.GenerateContent("models/"+g.model, req).Context(ctx).Do()
	if err != nil {
		return "", classifyGoogleError(err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: no candidates returned")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if g.logger != nil {
		g.logger.Debug("gemini generated", zap.String("model", g.model), zap.String("finish_reason", resp.Candidates[0].FinishReason))
	}
	return sb.String(), nil
}

func classifyGoogleError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("gemini: rate limited: %w", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("gemini: invalid credentials: %w", err)
		}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}
