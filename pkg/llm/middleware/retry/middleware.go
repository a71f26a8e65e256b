package retry

import (
	"context"
	"fmt"
	"time"

	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
	"mailtriage/pkg/logx"
)

// Middleware wraps a generator with retry logic. Once a retryable error survives every
// attempt, the caller receives a ServiceUnavailable error wrapping the last failure.
func Middleware(policy *Policy) llm.Middleware {
	logger := logx.NewLogger("llm-retry")
	return func(next llm.Generator) llm.Generator {
		return llm.GeneratorFunc(func(ctx context.Context, prompt, system string) (string, error) {
			var lastErr error

			for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
				if attempt > 1 {
					delay := policy.CalculateDelay(attempt)
					if delay > 0 {
						select {
						case <-ctx.Done():
							return "", fmt.Errorf("retry cancelled: %w", ctx.Err())
						case <-time.After(delay):
						}
					}
				}

				out, err := next.Generate(ctx, prompt, system)
				if err == nil {
					return out, nil
				}
				lastErr = err

				if !policy.ShouldRetry(err) {
					return "", err
				}
				if attempt < policy.Config.MaxAttempts {
					logger.Debug("attempt %d/%d failed, retrying: %v", attempt, policy.Config.MaxAttempts, err)
				}
			}

			return "", llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
		})
	}
}
