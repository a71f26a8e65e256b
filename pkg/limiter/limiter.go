// Package limiter provides a per-minute token bucket for generator calls.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mailtriage/pkg/logx"
)

var (
	// ErrRateLimit is returned by Reserve when the bucket cannot cover a request right now.
	ErrRateLimit = fmt.Errorf("rate limit exceeded")
	// ErrBudgetExceeded is returned when a single request needs more than a full bucket.
	ErrBudgetExceeded = fmt.Errorf("request exceeds per-minute token budget")
)

// Status is a point-in-time view of a limiter.
type Status struct {
	Name      string `json:"name"`
	Available int    `json:"available_tokens"`
	Capacity  int    `json:"capacity"`
	Waits     int64  `json:"waits"`
}

// Limiter is a token bucket refilled continuously at tokensPerMinute, holding at most one
// minute of tokens. A limiter with tokensPerMinute <= 0 admits everything.
//
//nolint:govet // Struct layout optimization not critical for this use case
type Limiter struct {
	mu              sync.Mutex
	name            string
	tokensPerMinute int
	available       float64
	lastRefill      time.Time
	waits           int64
	now             func() time.Time
}

// New creates a limiter that starts with a full bucket.
func New(name string, tokensPerMinute int) *Limiter {
	return &Limiter{
		name:            name,
		tokensPerMinute: tokensPerMinute,
		available:       float64(tokensPerMinute),
		lastRefill:      time.Now(),
		now:             time.Now,
	}
}

// Unlimited reports whether the limiter admits every request.
func (l *Limiter) Unlimited() bool {
	return l.tokensPerMinute <= 0
}

// Reserve takes tokens if they are available now.
func (l *Limiter) Reserve(tokens int) error {
	if l.Unlimited() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if tokens > l.tokensPerMinute {
		return ErrBudgetExceeded
	}
	l.refillLocked()
	if l.available < float64(tokens) {
		return ErrRateLimit
	}
	l.available -= float64(tokens)
	return nil
}

// Acquire takes tokens, waiting for the bucket to refill when needed. It returns
// ErrBudgetExceeded at once for requests larger than the bucket, and ctx's error if the
// context ends first.
func (l *Limiter) Acquire(ctx context.Context, tokens int) error {
	if l.Unlimited() {
		return nil
	}
	firstAttempt := true
	for {
		l.mu.Lock()
		if tokens > l.tokensPerMinute {
			l.mu.Unlock()
			return ErrBudgetExceeded
		}
		l.refillLocked()
		if l.available >= float64(tokens) {
			l.available -= float64(tokens)
			l.mu.Unlock()
			return nil
		}

		missing := float64(tokens) - l.available
		wait := time.Duration(missing / float64(l.tokensPerMinute) * float64(time.Minute))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if firstAttempt {
			l.waits++
			logx.Infof("RATELIMIT: %s token limit hit, waiting %v for refill (need %d, have %d)",
				l.name, wait.Round(time.Millisecond), tokens, int(l.available))
			firstAttempt = false
		}
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// Status returns the current bucket state.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.Unlimited() {
		l.refillLocked()
	}
	return Status{
		Name:      l.name,
		Available: int(l.available),
		Capacity:  l.tokensPerMinute,
		Waits:     l.waits,
	}
}

func (l *Limiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.available += float64(l.tokensPerMinute) * elapsed.Minutes()
	if l.available > float64(l.tokensPerMinute) {
		l.available = float64(l.tokensPerMinute)
	}
	l.lastRefill = now
}
