// Package llm generates answers through an ordered list of LLM providers.
package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Provider generates a completion for a single prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderFunc adapts a function to a named Provider.
type ProviderFunc func(ctx context.Context, prompt string) (string, error)

type funcProvider struct {
	name string
	fn   ProviderFunc
}

// NewFuncProvider returns a Provider named name that calls fn.
func NewFuncProvider(name string, fn ProviderFunc) Provider {
	return &funcProvider{name: name, fn: fn}
}

func (p *funcProvider) Name() string { return p.name }

func (p *funcProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.fn(ctx, prompt)
}

// ProviderError records which provider failed.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// newLimiter returns nil (unlimited) when rps is not positive.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
