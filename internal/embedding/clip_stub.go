//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("CLIP embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ClipEmbedder stub type when built without CGO (see clip.go for the real
// implementation).
type ClipEmbedder struct{}

// NewClipEmbedder returns an error when built without CGO (ONNX not available).
func NewClipEmbedder(_, _, _ string, _, _, _ int) (*ClipEmbedder, error) {
	return nil, errNoCGO
}

// EmbedText always fails in the stub build.
func (e *ClipEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return nil, errNoCGO
}

// EmbedImage always fails in the stub build.
func (e *ClipEmbedder) EmbedImage(_ context.Context, _ string) ([]float32, error) {
	return nil, errNoCGO
}

// Dimensions returns 0 in the stub build.
func (e *ClipEmbedder) Dimensions() int { return 0 }

// Close is a no-op in the stub build.
func (e *ClipEmbedder) Close() error { return nil }
