package llm

import (
	"context"
	"fmt"

	"github.com/hyperjump/shoel/internal/config"
	"go.uber.org/zap"
)

// NewFromConfig builds the fallback chain from cfg.Providers. Providers whose
// API key is not set in the environment are skipped with a warning, so the
// chain may be empty.
func NewFromConfig(ctx context.Context, cfg config.GenerationConfig, logger *zap.Logger) (*Fallback, error) {
	var providers []Provider
	for _, pc := range cfg.Providers {
		key := pc.APIKey()
		if key == "" {
			if logger != nil {
				logger.Warn("llm provider skipped: API key not set",
					zap.String("provider", pc.Name), zap.String("env", pc.APIKeyEnv))
			}
			continue
		}
		var (
			p   Provider
			err error
		)
		switch pc.Type {
		case config.ProviderGemini:
			p, err = NewGeminiProvider(ctx, GeminiConfig{
				Name:              pc.Name,
				APIKey:            key,
				Model:             pc.Model,
				Endpoint:          pc.BaseURL,
				RequestsPerSecond: pc.RequestsPerSecond,
			}, logger)
		case config.ProviderOpenAI, "":
			p, err = NewOpenAIProvider(OpenAIConfig{
				Name:              pc.Name,
				APIKey:            key,
				Model:             pc.Model,
				BaseURL:           pc.BaseURL,
				RequestsPerSecond: pc.RequestsPerSecond,
			}, logger)
		default:
			err = fmt.Errorf("unknown provider type %q", pc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 && logger != nil {
		logger.Warn("no LLM provider configured; generation requests will fail")
	}
	return NewFallback(providers, WithTimeout(cfg.Timeout()), WithLogger(logger)), nil
}
