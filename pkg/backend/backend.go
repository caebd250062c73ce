// Package backend abstracts the text-generation service used for skill
// synthesis, repair, and description embedding. Implementations wrap a
// provider SDK; the engine treats the backend as an opaque, fallible,
// retryable external call so that generator and reflection logic stay
// deterministic under a stubbed backend.
package backend

import (
	"context"
	"time"
)

// CompleteConfig tunes a single completion request.
type CompleteConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Backend is the opaque text-completion and embedding service. Both calls
// may fail with recoverable errors (rate limits, transient unavailability);
// callers bound their own retries.
type Backend interface {
	// Complete generates text for a prompt.
	Complete(ctx context.Context, prompt string, config CompleteConfig) (string, error)

	// Embed returns the embedding vector for a text.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// RetryConfig bounds the retry loop around provider calls.
type RetryConfig struct {
	Attempts     uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig is used when a zero RetryConfig is supplied.
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

func (c RetryConfig) orDefault() RetryConfig {
	if c.Attempts == 0 {
		return DefaultRetryConfig
	}
	return c
}
