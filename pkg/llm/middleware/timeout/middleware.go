// Package timeout provides per-attempt timeouts for generator calls.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
)

// Middleware bounds each call by duration. A call that runs out of its own time while the
// caller's context is still live fails with a transient error, so an outer retry can try again.
// A non-positive duration disables the timeout.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Generator) llm.Generator {
		if duration <= 0 {
			return next
		}
		return llm.GeneratorFunc(func(ctx context.Context, prompt, system string) (string, error) {
			timeoutCtx, cancel := context.WithTimeout(ctx, duration)
			defer cancel()

			out, err := next.Generate(timeoutCtx, prompt, system)
			if err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
				return "", llmerrors.NewError(llmerrors.ErrorTypeTransient, fmt.Sprintf("request timed out after %v", duration))
			}
			return out, err
		})
	}
}
