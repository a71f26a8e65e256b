// Package metrics provides metrics middleware for generator calls.
package metrics

import (
	"context"
	"time"

	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
	"mailtriage/pkg/logx"
	"mailtriage/pkg/metrics"
)

// Middleware records latency and outcome of every call made through it.
func Middleware(recorder metrics.Recorder, provider, model string) llm.Middleware {
	logger := logx.NewLogger("llm-metrics")
	return func(next llm.Generator) llm.Generator {
		return llm.GeneratorFunc(func(ctx context.Context, prompt, system string) (string, error) {
			start := time.Now()
			out, err := next.Generate(ctx, prompt, system)
			duration := time.Since(start)

			errorType := ""
			if err != nil {
				errorType = llmerrors.Classify(err).Type.String()
				logger.Debug("%s/%s call failed after %v (%s): %v", provider, model, duration, errorType, err)
			}
			recorder.ObserveGeneration(provider, model, err == nil, errorType, duration)
			return out, err
		})
	}
}
