package embeddings

import "context"

// Embedder produces vector representations for message text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
