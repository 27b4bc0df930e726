// Package llm provides ContentGenerator implementations backed by hosted language models.
package llm

import (
	"context"
)

// Prompt is the structured context passed to a generator.
type Prompt struct {
	System      string
	User        string
	Temperature float32
}

// ContentGenerator turns a prompt into text. Errors are classified models.Error values
// (Timeout or CollaboratorFault).
type ContentGenerator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeneratorFunc adapts a function to ContentGenerator.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }
