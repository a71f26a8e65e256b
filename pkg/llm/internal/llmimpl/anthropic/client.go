// Package anthropic provides the Claude generator.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

// defaultMaxTokens is required by the Messages API when none is configured.
const defaultMaxTokens = 1024

// Client wraps the Anthropic API client to implement llm.Generator.
//
//nolint:govet // Simple client struct, logical grouping preferred
type Client struct {
	client anthropic.Client
	opts   llm.ClientOptions
}

// New creates a Claude generator (raw client, middleware applied at higher level).
// SDK-level retries are off; the retry middleware owns back-off.
func New(opts llm.ClientOptions) *Client {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Client{
		client: anthropic.NewClient(reqOpts...),
		opts:   opts,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.opts.Model
}

// Generate implements llm.Generator.
func (c *Client) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		MaxTokens: int64(c.opts.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.opts.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.opts.Temperature))
	}
	if systemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemInstruction}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return "", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Claude returned no text blocks")
	}
	return text.String(), nil
}

// classifyError maps Anthropic SDK errors to our structured error types.
func classifyError(err error) *llmerrors.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if classified, ok := llmerrors.FromStatus(apiErr.StatusCode, err); ok {
			return classified
		}
	}
	return llmerrors.Classify(fmt.Errorf("claude API call failed: %w", err))
}
