// Package embedclient abstracts the embedding interface the Retrieval
// Client uses to turn query text into a vector,
// mirroring pkg/embeddings' provider-registry shape.
package embedclient

import "context"

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}
