// Package tokens provides tiktoken-based token counting and truncation.
package tokens

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with the GPT-4 encoding, which approximates every supported
// provider closely enough for budgeting.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// Truncate returns the longest prefix of text that fits in limit tokens, cut on a token
// boundary. Text already within the limit is returned unchanged.
func (c *Counter) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if c == nil || c.codec == nil {
		if len(text) <= limit*4 {
			return text
		}
		return text[:limit*4]
	}

	ids, _, err := c.codec.Encode(text)
	if err != nil || len(ids) <= limit {
		return text
	}
	out, err := c.codec.Decode(ids[:limit])
	if err != nil {
		return text[:min(len(text), limit*4)]
	}
	return out
}

//nolint:gochecknoglobals // shared codec, loaded once
var defaultCounter = sync.OnceValue(func() *Counter {
	c, err := NewCounter()
	if err != nil {
		return nil
	}
	return c
})

// Default returns a shared counter. A nil result still counts, by character estimate.
func Default() *Counter {
	return defaultCounter()
}

// Count counts tokens with the shared counter.
func Count(text string) int {
	return Default().Count(text)
}
