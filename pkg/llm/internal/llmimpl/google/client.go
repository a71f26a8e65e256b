// Package google provides the Gemini generator.
package google

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Client wraps the Google GenAI client to implement llm.Generator.
type Client struct {
	mu     sync.Mutex
	client *genai.Client
	opts   llm.ClientOptions
}

// New creates a Gemini generator (raw client, middleware applied at higher level).
func New(opts llm.ClientOptions) *Client {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	return &Client{opts: opts}
}

// Model returns the configured model name.
func (g *Client) Model() string {
	return g.opts.Model
}

// genaiClient creates the SDK client on first use; creation needs a context.
func (g *Client) genaiClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  g.opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	g.client = client
	return client, nil
}

// Generate implements llm.Generator.
func (g *Client) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	client, err := g.genaiClient(ctx)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{}
	if g.opts.Temperature > 0 {
		temperature := g.opts.Temperature
		config.Temperature = &temperature
	}
	if g.opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(g.opts.MaxTokens) //nolint:gosec // validated by config
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, g.opts.Model, genai.Text(prompt), config)
	if err != nil {
		return "", llmerrors.Classify(fmt.Errorf("gemini API call failed: %w", err))
	}
	if result == nil {
		return "", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	text := result.Text()
	if text == "" {
		return "", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Gemini returned no text")
	}
	return text, nil
}
