package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/pkg/config"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/middleware/retry"
)

func TestNewNoneIsDisabled(t *testing.T) {
	gen, err := New(config.LLMConfig{Provider: config.ProviderNone}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "hello", "")
	assert.True(t, errors.Is(err, llm.ErrDisabled))
}

func TestNewRequiresAPIKey(t *testing.T) {
	for _, p := range []string{config.ProviderGemini, config.ProviderAnthropic, config.ProviderOpenAI} {
		t.Run(p, func(t *testing.T) {
			_, err := New(config.LLMConfig{Provider: p}, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "cohere"}, nil)
	assert.Error(t, err)
}

func TestNewOllamaRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"model is loading"}`))
			return
		}
		_, _ = w.Write([]byte(`{"model":"m","created_at":"2026-01-01T00:00:00Z",` +
			`"message":{"role":"assistant","content":"ok"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	gen, err := New(config.LLMConfig{
		Provider:       config.ProviderOllama,
		Model:          "m",
		BaseURL:        srv.URL,
		RequestTimeout: 5 * time.Second,
		Retry: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 1,
		},
	}, nil)
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}
