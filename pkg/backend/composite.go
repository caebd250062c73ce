package backend

import "context"

// CompositeBackend routes completions and embeddings to different
// providers. The usual pairing is Anthropic completions with OpenAI
// embeddings, since Anthropic exposes no embedding endpoint.
type CompositeBackend struct {
	completer Backend
	embedder  Backend
}

// NewComposite builds a composite backend. embedder may be nil, in which
// case Embed reports ErrEmbeddingUnsupported.
func NewComposite(completer, embedder Backend) *CompositeBackend {
	return &CompositeBackend{completer: completer, embedder: embedder}
}

func (c *CompositeBackend) Complete(ctx context.Context, prompt string, cfg CompleteConfig) (string, error) {
	return c.completer.Complete(ctx, prompt, cfg)
}

func (c *CompositeBackend) Embed(ctx context.Context, text string) ([]float64, error) {
	if c.embedder == nil {
		return nil, ErrEmbeddingUnsupported
	}
	return c.embedder.Embed(ctx, text)
}
