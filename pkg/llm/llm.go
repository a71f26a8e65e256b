// Package llm defines the text generator used for context summaries, action lists and replies,
// and middleware chaining around it.
package llm

import (
	"context"
	"errors"
)

// ErrDisabled is returned by Disabled for every call.
var ErrDisabled = errors.New("text generation is disabled")

// Generator produces text for a prompt and an optional system instruction.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt, systemInstruction string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	return f(ctx, prompt, systemInstruction)
}

// Middleware represents a function that wraps a Generator with additional behavior.
type Middleware func(next Generator) Generator

// Chain composes multiple middlewares around a base Generator.
// Middlewares are applied in order, with earlier middlewares being outermost.
//
// For example: Chain(gen, mw1, mw2, mw3) creates the call stack:
//
//	mw1 -> mw2 -> mw3 -> gen
func Chain(base Generator, middlewares ...Middleware) Generator {
	gen := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		gen = middlewares[i](gen)
	}
	return gen
}

type disabled struct{}

func (disabled) Generate(context.Context, string, string) (string, error) {
	return "", ErrDisabled
}

// Disabled is a Generator that always fails with ErrDisabled.
//
//nolint:gochecknoglobals // stateless sentinel implementation
var Disabled Generator = disabled{}

// IsDisabled reports whether err came from a disabled generator.
func IsDisabled(err error) bool {
	return errors.Is(err, ErrDisabled)
}

// ClientOptions configures a provider client.
type ClientOptions struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}
