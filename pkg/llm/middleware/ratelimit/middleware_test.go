package ratelimit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/pkg/limiter"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
	"mailtriage/pkg/metrics"
)

type throttleRecorder struct {
	metrics.NoopRecorder
	reasons []string
}

func (r *throttleRecorder) IncThrottle(_, reason string) {
	r.reasons = append(r.reasons, reason)
}

func okGenerator(calls *int) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		*calls++
		return "ok", nil
	})
}

func TestMiddlewareAdmitsWithinBudget(t *testing.T) {
	lim := limiter.New("gemini", 10000)
	calls := 0
	gen := llm.Chain(okGenerator(&calls), Middleware(lim, nil, 100, "gemini", nil))

	out, err := gen.Generate(context.Background(), "short prompt", "system")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, calls)
	assert.Less(t, lim.Status().Available, 10000-100+1)
}

func TestMiddlewareRejectsOversizedPrompt(t *testing.T) {
	rec := &throttleRecorder{}
	lim := limiter.New("gemini", 50)
	calls := 0
	gen := llm.Chain(okGenerator(&calls), Middleware(lim, nil, 10, "gemini", rec))

	_, err := gen.Generate(context.Background(), strings.Repeat("word ", 400), "")
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
	assert.True(t, errors.Is(err, limiter.ErrBudgetExceeded))
	assert.Zero(t, calls)
	assert.Equal(t, []string{"budget"}, rec.reasons)
}

func TestMiddlewareUnlimited(t *testing.T) {
	calls := 0
	gen := llm.Chain(okGenerator(&calls), Middleware(limiter.New("ollama", 0), nil, 1000, "ollama", nil))
	for i := 0; i < 3; i++ {
		_, err := gen.Generate(context.Background(), strings.Repeat("x", 10000), "")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}
