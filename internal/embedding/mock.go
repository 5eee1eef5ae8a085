package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and development. Text
// embeddings derive from the text hash; image embeddings derive from the
// file contents hash, so the same input always gets the same unit vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing deterministic embeddings
// of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedText returns a deterministic unit vector derived from the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.fromSeed(hashString(text)), nil
}

// EmbedImage returns a deterministic unit vector derived from the file
// contents. Unreadable files map to ErrUnavailable, matching how a real
// provider reports malformed input.
func (e *MockEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return e.fromSeed(h.Sum64()), nil
}

func (e *MockEmbedder) fromSeed(seed uint64) []float32 {
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(seed%100003)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
