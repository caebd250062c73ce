package backend

import (
	"context"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/autoskill-ai/autoskill/pkg/logger"
)

// OpenAIBackend implements Backend on the OpenAI-compatible chat completions
// and embeddings APIs. A custom base URL makes it work against any
// compatible gateway.
type OpenAIBackend struct {
	client         *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
	retryConfig    RetryConfig
}

// OpenAIOption configures an OpenAIBackend.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	baseURL        string
	model          string
	embeddingModel openai.EmbeddingModel
	retryConfig    RetryConfig
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(o *openAIOptions) { o.baseURL = baseURL }
}

// WithModel sets the default completion model.
func WithModel(model string) OpenAIOption {
	return func(o *openAIOptions) { o.model = model }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model openai.EmbeddingModel) OpenAIOption {
	return func(o *openAIOptions) { o.embeddingModel = model }
}

// WithRetryConfig overrides the default retry budget.
func WithRetryConfig(config RetryConfig) OpenAIOption {
	return func(o *openAIOptions) { o.retryConfig = config }
}

// NewOpenAIBackend creates a backend from an API key and options.
func NewOpenAIBackend(apiKey string, opts ...OpenAIOption) *OpenAIBackend {
	options := &openAIOptions{
		model:          openai.GPT4oMini,
		embeddingModel: openai.SmallEmbedding3,
	}
	for _, opt := range opts {
		opt(options)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if options.baseURL != "" {
		clientConfig.BaseURL = options.baseURL
	}

	return &OpenAIBackend{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          options.model,
		embeddingModel: options.embeddingModel,
		retryConfig:    options.retryConfig.orDefault(),
	}
}

// Complete sends a single-message chat completion request with bounded
// retries on transient provider failures.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, config CompleteConfig) (string, error) {
	model := config.Model
	if model == "" {
		model = b.model
	}

	var response openai.ChatCompletionResponse
	err := retry.Do(
		func() error {
			var apiErr error
			response, apiErr = b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       model,
				MaxTokens:   config.MaxTokens,
				Temperature: config.Temperature,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleUser, Content: prompt},
				},
			})
			return apiErr
		},
		retry.RetryIf(isRetryableError),
		retry.Attempts(b.retryConfig.Attempts),
		retry.Delay(b.retryConfig.InitialDelay),
		retry.MaxDelay(b.retryConfig.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying completion request")
		}),
	)
	if err != nil {
		return "", errors.Wrap(err, "completion request failed")
	}
	if len(response.Choices) == 0 {
		return "", errors.New("completion response contains no choices")
	}
	return response.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for a text.
func (b *OpenAIBackend) Embed(ctx context.Context, text string) ([]float64, error) {
	var response openai.EmbeddingResponse
	err := retry.Do(
		func() error {
			var apiErr error
			response, apiErr = b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: []string{text},
				Model: b.embeddingModel,
			})
			return apiErr
		},
		retry.RetryIf(isRetryableError),
		retry.Attempts(b.retryConfig.Attempts),
		retry.Delay(b.retryConfig.InitialDelay),
		retry.MaxDelay(b.retryConfig.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, errors.Wrap(err, "embedding request failed")
	}
	if len(response.Data) == 0 {
		return nil, errors.New("embedding response contains no data")
	}

	raw := response.Data[0].Embedding
	vector := make([]float64, len(raw))
	for i, v := range raw {
		vector[i] = float64(v)
	}
	return vector, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}
