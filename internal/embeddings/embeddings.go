package embeddings

import "context"

// Provider produces vector representations for text.
// Implementations return an empty vector for empty input.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
