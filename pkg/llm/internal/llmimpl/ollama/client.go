// Package ollama provides the generator for a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
)

// DefaultHost is used when no base URL is configured.
const DefaultHost = "http://localhost:11434"

// DefaultModel is used when no model is configured.
const DefaultModel = "llama3.1:8b"

// Client wraps the Ollama API client to implement llm.Generator.
type Client struct {
	client *api.Client
	opts   llm.ClientOptions
}

// New creates an Ollama generator. An unparsable base URL falls back to DefaultHost.
func New(opts llm.ClientOptions) *Client {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultHost
	}
	parsedURL, err := url.Parse(opts.BaseURL)
	if err != nil || parsedURL.Scheme == "" {
		parsedURL, _ = url.Parse(DefaultHost)
	}
	return &Client{
		client: api.NewClient(parsedURL, http.DefaultClient),
		opts:   opts,
	}
}

// Model returns the configured model name.
func (o *Client) Model() string {
	return o.opts.Model
}

// Generate implements llm.Generator.
func (o *Client) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	messages := make([]api.Message, 0, 2)
	if systemInstruction != "" {
		messages = append(messages, api.Message{Role: "system", Content: systemInstruction})
	}
	messages = append(messages, api.Message{Role: "user", Content: prompt})

	options := map[string]any{}
	if o.opts.Temperature > 0 {
		options["temperature"] = o.opts.Temperature
	}
	if o.opts.MaxTokens > 0 {
		options["num_predict"] = o.opts.MaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.opts.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return "", classifyError(err)
	}
	if response.Message.Content == "" {
		return "", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Ollama returned no content")
	}
	return response.Message.Content, nil
}

// classifyError converts Ollama errors to our error types.
func classifyError(err error) *llmerrors.Error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if classified, ok := llmerrors.FromStatus(statusErr.StatusCode, err); ok {
			return classified
		}
	}
	return llmerrors.Classify(fmt.Errorf("ollama API error: %w", err))
}
