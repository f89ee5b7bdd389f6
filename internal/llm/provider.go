// Package llm streams chat completions from an upstream language model.
package llm

import (
	"context"
	"iter"

	"github.com/ashureev/portfolio/internal/domain"
)

// Provider streams a completion for a conversation. The sequence yields text
// chunks in arrival order; a non-nil error ends the sequence.
type Provider interface {
	Stream(ctx context.Context, messages []domain.Message) iter.Seq2[string, error]

	// Model names the upstream model, for logs and health output.
	Model() string
}

// ProviderFunc adapts a function into a Provider.
type ProviderFunc func(ctx context.Context, messages []domain.Message) iter.Seq2[string, error]

// Stream calls f.
func (f ProviderFunc) Stream(ctx context.Context, messages []domain.Message) iter.Seq2[string, error] {
	return f(ctx, messages)
}

// Model returns a placeholder name.
func (f ProviderFunc) Model() string { return "func" }
