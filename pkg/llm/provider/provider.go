// Package provider builds the configured text generator with its middleware chain.
package provider

import (
	"fmt"

	"mailtriage/pkg/config"
	"mailtriage/pkg/limiter"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/internal/llmimpl/anthropic"
	"mailtriage/pkg/llm/internal/llmimpl/google"
	"mailtriage/pkg/llm/internal/llmimpl/ollama"
	"mailtriage/pkg/llm/internal/llmimpl/openaiofficial"
	llmmetrics "mailtriage/pkg/llm/middleware/metrics"
	"mailtriage/pkg/llm/middleware/ratelimit"
	"mailtriage/pkg/llm/middleware/retry"
	"mailtriage/pkg/llm/middleware/timeout"
	"mailtriage/pkg/logx"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/tokens"
)

// modelClient is what every raw provider client offers.
type modelClient interface {
	llm.Generator
	Model() string
}

// New returns the generator for cfg.Provider. Provider "none" yields llm.Disabled.
//
// The chain is, outermost first: metrics, retry, rate limit, timeout, client. Metrics see one
// observation per logical call, each retry attempt waits for budget, and the timeout bounds
// a single attempt.
func New(cfg config.LLMConfig, recorder metrics.Recorder) (llm.Generator, error) {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if cfg.Provider == config.ProviderNone {
		logx.NewLogger("llm").Info("text generation disabled (provider none)")
		return llm.Disabled, nil
	}

	base, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	counter := tokens.Default()
	lim := limiter.New(cfg.Provider, cfg.TokensPerMinute)
	policy := retry.NewPolicy(cfg.Retry, nil)

	logx.NewLogger("llm").Info("using %s model %s", cfg.Provider, base.Model())
	return llm.Chain(base,
		llmmetrics.Middleware(recorder, cfg.Provider, base.Model()),
		retry.Middleware(policy),
		ratelimit.Middleware(lim, counter, cfg.MaxTokens, cfg.Provider, recorder),
		timeout.Middleware(cfg.RequestTimeout),
	), nil
}

func newClient(cfg config.LLMConfig) (modelClient, error) {
	opts := llm.ClientOptions{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("gemini requires an API key")
		}
		return google.New(opts), nil
	case config.ProviderAnthropic:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("anthropic requires an API key")
		}
		return anthropic.New(opts), nil
	case config.ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai requires an API key")
		}
		return openaiofficial.New(opts), nil
	case config.ProviderOllama:
		return ollama.New(opts), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}
