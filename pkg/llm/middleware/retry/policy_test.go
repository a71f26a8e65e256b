package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/llmerrors"
)

func TestCalculateDelay(t *testing.T) {
	p := NewPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      300 * time.Millisecond,
		BackoffFactor: 2.0,
	}, nil)

	assert.Equal(t, time.Duration(0), p.CalculateDelay(1))
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, p.CalculateDelay(3))
	assert.Equal(t, 300*time.Millisecond, p.CalculateDelay(4), "capped at MaxDelay")
}

func TestCalculateDelayJitterStaysWithinTenPercent(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 2, Jitter: true}, nil)
	for i := 0; i < 50; i++ {
		d := p.CalculateDelay(2)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(context.Canceled))
	assert.True(t, ShouldRetry(llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429")))
	assert.False(t, ShouldRetry(llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")))
	assert.True(t, ShouldRetry(errors.New("connection reset by peer")))
	assert.False(t, ShouldRetry(llm.ErrDisabled), "disabled generator is a bad prompt, not transient")
}

func fastPolicy(attempts int) *Policy {
	return NewPolicy(Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}, nil)
}

func TestMiddlewareRetriesUntilSuccess(t *testing.T) {
	calls := 0
	base := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		calls++
		if calls < 3 {
			return "", llmerrors.NewError(llmerrors.ErrorTypeTransient, "503")
		}
		return "done", nil
	})

	out, err := llm.Chain(base, Middleware(fastPolicy(3))).Generate(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 3, calls)
}

func TestMiddlewareExhaustedBecomesServiceUnavailable(t *testing.T) {
	calls := 0
	base := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		calls++
		return "", llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429")
	})

	_, err := llm.Chain(base, Middleware(fastPolicy(2))).Generate(context.Background(), "p", "")
	require.Error(t, err)
	assert.True(t, llmerrors.IsServiceUnavailable(err))
	assert.Equal(t, 2, calls)
}

func TestMiddlewareDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	base := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		calls++
		return "", llmerrors.NewError(llmerrors.ErrorTypeAuth, "401")
	})

	_, err := llm.Chain(base, Middleware(fastPolicy(5))).Generate(context.Background(), "p", "")
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Equal(t, 1, calls)
}

func TestMiddlewareStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	base := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		cancel()
		return "", llmerrors.NewError(llmerrors.ErrorTypeTransient, "503")
	})
	policy := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1}, nil)

	_, err := llm.Chain(base, Middleware(policy)).Generate(ctx, "p", "")
	assert.ErrorIs(t, err, context.Canceled)
}
