// Package ratelimit provides token-budget rate limiting for generator calls.
package ratelimit

import (
	"context"
	"errors"

	"mailtriage/pkg/limiter"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/tokens"
)

// Middleware acquires prompt + maxOutputTokens from lim before each call. A request larger
// than the whole bucket fails as a bad prompt; it can never succeed.
func Middleware(lim *limiter.Limiter, counter *tokens.Counter, maxOutputTokens int, provider string, recorder metrics.Recorder) llm.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return func(next llm.Generator) llm.Generator {
		return llm.GeneratorFunc(func(ctx context.Context, prompt, system string) (string, error) {
			needed := counter.Count(system+"\n"+prompt) + maxOutputTokens

			if err := lim.Acquire(ctx, needed); err != nil {
				if errors.Is(err, limiter.ErrBudgetExceeded) {
					recorder.IncThrottle(provider, "budget")
					return "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "prompt exceeds the per-minute token budget")
				}
				recorder.IncThrottle(provider, "cancelled")
				return "", err //nolint:wrapcheck // Middleware should pass through errors unchanged
			}
			return next.Generate(ctx, prompt, system)
		})
	}
}
