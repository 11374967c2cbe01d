// Package embed defines the embedding provider contract used by
// string-query semantic search. Callers register an implementation and
// text queries are converted to vectors through it.
package embed

import "context"

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

type funcEmbedder struct {
	dim int
	fn  func(context.Context, string) ([]float32, error)
}

// NewFunc adapts a plain function into an Embedder.
func NewFunc(dim int, fn func(context.Context, string) ([]float32, error)) Embedder {
	return &funcEmbedder{dim: dim, fn: fn}
}

func (f *funcEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.fn(ctx, text)
}

func (f *funcEmbedder) Dim() int { return f.dim }
