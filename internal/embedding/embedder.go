// Package embedding provides text and image embedding providers.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable marks an embedding provider failure. A query whose text
// cannot be embedded fails as a whole; there is no cached-only fallback.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder produces fixed-length, unit-normalized vector embeddings for
// text and images. Both operations are deterministic for a given input.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	Dimensions() int
	Close() error
}
