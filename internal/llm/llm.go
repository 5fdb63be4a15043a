// Package llm defines the language-model collaborator and its OpenAI adapter.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrGeneration wraps every transport or API failure from a model.
	ErrGeneration = errors.New("llm: generation failed")
	// ErrEmptyResponse is returned when the model answers with no choices.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Options selects the model and sampling for one call.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Generation is the model's answer.
type Generation struct {
	Content     string
	UsageTokens int
}

// Model generates text for a fully composed prompt.
type Model interface {
	Generate(ctx context.Context, prompt string, opts Options) (*Generation, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, prompt string, opts Options) (*Generation, error)

func (f ModelFunc) Generate(ctx context.Context, prompt string, opts Options) (*Generation, error) {
	return f(ctx, prompt, opts)
}
