package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/shoel/internal/models"
	"go.uber.org/zap"
)

// NoProvider is reported by Active before any provider is configured.
const NoProvider = "none"

// Fallback tries providers in order and returns the first non-empty answer.
type Fallback struct {
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger

	mu     sync.RWMutex
	active string
}

// Option configures a Fallback.
type Option func(*Fallback)

// WithTimeout bounds each provider call. Zero means no per-call limit.
func WithTimeout(d time.Duration) Option {
	return func(f *Fallback) { f.timeout = d }
}

// WithLogger sets a logger for fallback events.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fallback) { f.logger = l }
}

// NewFallback returns a Fallback over providers, tried in the given order.
func NewFallback(providers []Provider, opts ...Option) *Fallback {
	f := &Fallback{providers: providers}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Generate returns the answer text and the name of the provider that produced it.
// When every provider fails the error wraps models.ErrGenerationFailed and each
// provider's ProviderError. Cancellation of ctx stops the chain immediately.
func (f *Fallback) Generate(ctx context.Context, prompt string) (string, string, error) {
	if len(f.providers) == 0 {
		return "", "", fmt.Errorf("%w: no LLM provider configured", models.ErrGenerationFailed)
	}
	var errs []error
	for i, p := range f.providers {
		text, err := f.call(ctx, p, prompt)
		if err == nil {
			f.mu.Lock()
			f.active = p.Name()
			f.mu.Unlock()
			if f.logger != nil {
				f.logger.Debug("llm answered", zap.String("provider", p.Name()), zap.Int("chars", len(text)))
			}
			return text, p.Name(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		errs = append(errs, &ProviderError{Provider: p.Name(), Err: err})
		if f.logger != nil && i+1 < len(f.providers) {
			f.logger.Warn("llm provider failed, falling back",
				zap.String("provider", p.Name()), zap.String("next", f.providers[i+1].Name()), zap.Error(err))
		}
	}
	return "", "", errors.Join(append([]error{
		fmt.Errorf("%w: all %d providers failed", models.ErrGenerationFailed, len(f.providers)),
	}, errs...)...)
}

func (f *Fallback) call(ctx context.Context, p Provider, prompt string) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	text, err := p.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}

// Active returns the provider that answered last, the primary provider before
// any answer, or NoProvider when none is configured.
func (f *Fallback) Active() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.active != "" {
		return f.active
	}
	if len(f.providers) > 0 {
		return f.providers[0].Name()
	}
	return NoProvider
}

// Providers returns the configured provider names in fallback order.
func (f *Fallback) Providers() []string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return names
}
