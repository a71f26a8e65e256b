// Package openaiofficial provides the OpenAI generator using the official OpenAI Go package.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4.1-mini"

// Client wraps the official OpenAI Go client to implement llm.Generator.
//
//nolint:govet // Simple struct, field alignment not critical
type Client struct {
	client openai.Client
	opts   llm.ClientOptions
}

// New creates an OpenAI generator (raw client, middleware applied at higher level).
func New(opts llm.ClientOptions) *Client {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Client{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
	}
}

// Model returns the configured model name.
func (o *Client) Model() string {
	return o.opts.Model
}

// Generate implements llm.Generator using the Responses API.
func (o *Client) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	params := responses.ResponseNewParams{
		Model: o.opts.Model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
	}
	if systemInstruction != "" {
		params.Instructions = openai.String(systemInstruction)
	}
	if o.opts.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(o.opts.MaxTokens))
	}
	if o.opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(o.opts.Temperature))
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}
	if resp == nil {
		return "", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return "", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI returned no output text")
	}
	return content, nil
}

func classifyError(err error) *llmerrors.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if classified, ok := llmerrors.FromStatus(apiErr.StatusCode, err); ok {
			return classified
		}
	}
	return llmerrors.Classify(fmt.Errorf("OpenAI Responses API failed: %w", err))
}
