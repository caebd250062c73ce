package backend

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/autoskill-ai/autoskill/pkg/logger"
)

// AnthropicBackend implements the completion half of Backend on the
// Anthropic Messages API. Anthropic exposes no embedding endpoint, so Embed
// always fails; pair this backend with an embedding-capable one (or disable
// dedup) when creating skills.
type AnthropicBackend struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	retryConfig RetryConfig
}

// ErrEmbeddingUnsupported is returned by AnthropicBackend.Embed.
var ErrEmbeddingUnsupported = errors.New("anthropic backend does not support embeddings")

// AnthropicOption configures an AnthropicBackend.
type AnthropicOption func(*AnthropicBackend)

// WithAnthropicModel sets the completion model.
func WithAnthropicModel(model anthropic.Model) AnthropicOption {
	return func(b *AnthropicBackend) { b.model = model }
}

// WithAnthropicRetryConfig overrides the default retry budget.
func WithAnthropicRetryConfig(config RetryConfig) AnthropicOption {
	return func(b *AnthropicBackend) { b.retryConfig = config }
}

// NewAnthropicBackend creates a backend from an API key and options.
func NewAnthropicBackend(apiKey string, opts ...AnthropicOption) *AnthropicBackend {
	b := &AnthropicBackend{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       anthropic.ModelClaude3_5HaikuLatest,
		maxTokens:   8192,
		retryConfig: DefaultRetryConfig,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Complete sends a single-message request with bounded retries.
func (b *AnthropicBackend) Complete(ctx context.Context, prompt string, config CompleteConfig) (string, error) {
	model := b.model
	if config.Model != "" {
		model = anthropic.Model(config.Model)
	}
	maxTokens := b.maxTokens
	if config.MaxTokens > 0 {
		maxTokens = int64(config.MaxTokens)
	}

	var response *anthropic.Message
	err := retry.Do(
		func() error {
			var apiErr error
			response, apiErr = b.client.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     model,
				MaxTokens: maxTokens,
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
				},
			})
			return apiErr
		},
		retry.Attempts(b.retryConfig.Attempts),
		retry.Delay(b.retryConfig.InitialDelay),
		retry.MaxDelay(b.retryConfig.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying anthropic completion")
		}),
	)
	if err != nil {
		return "", errors.Wrap(err, "anthropic completion failed")
	}

	for _, block := range response.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			return text.Text, nil
		}
	}
	return "", errors.New("anthropic response contains no text block")
}

// Embed is unsupported on this backend.
func (b *AnthropicBackend) Embed(_ context.Context, _ string) ([]float64, error) {
	return nil, ErrEmbeddingUnsupported
}
