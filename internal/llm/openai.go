package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures an OpenAIProvider. BaseURL selects any
// OpenAI-compatible endpoint such as Groq.
type OpenAIConfig struct {
	Name              string
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerSecond float64
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	name    string
	model   string
	client  *openai.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOpenAIProvider creates a chat completions provider.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model is required", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		client:  openai.NewClientWithConfig(clientCfg),
		limiter: newLimiter(cfg.RequestsPerSecond),
		logger:  logger,
	}, nil
}

// Name returns the configured provider name.
func (o *OpenAIProvider) Name() string { return o.name }

// Generate sends prompt as a single user message.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := wait(ctx, o.limiter); err != nil {
		return "", err
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: chat completion: %w", o.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(o.name + ": no choices returned")
	}
	if o.logger != nil {
		o.logger.Debug("openai generated", zap.String("provider", o.name), zap.String("model", o.model),
			zap.Int("total_tokens", resp.Usage.TotalTokens))
	}
	return resp.Choices[0].Message.Content, nil
}
