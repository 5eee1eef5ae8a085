//go:build cgo
// +build cgo

// CLIP embedder via ONNX Runtime (requires CGO and the onnxruntime library).

package embedding

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

const clipImageSize = 224

// Channel normalization constants from the CLIP preprocessing pipeline.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// ClipEmbedder embeds text and images with a pair of exported CLIP ONNX
// models (text encoder and visual encoder) sharing one output space.
type ClipEmbedder struct {
	textSession  *ort.AdvancedSession
	imageSession *ort.AdvancedSession
	tokenizer    *ClipTokenizer
	dimensions   int
	maxTokens    int
	cache        *Cache

	inputIDsTensor   *ort.Tensor[int64]
	textOutputTensor *ort.Tensor[float32]

	pixelTensor       *ort.Tensor[float32]
	imageOutputTensor *ort.Tensor[float32]

	mu sync.Mutex
}

// NewClipEmbedder creates a CLIP embedder from the text and image encoder
// model paths plus the tokenizer vocabulary. InitializeEnvironment is
// called if not already done.
func NewClipEmbedder(textModelPath, imageModelPath, vocabPath string, dimensions, maxTokens, cacheSize int) (*ClipEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	tokenizer, err := NewClipTokenizer(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	e := &ClipEmbedder{
		tokenizer:  tokenizer,
		dimensions: dimensions,
		maxTokens:  maxTokens,
		cache:      NewCache(cacheSize),
	}

	e.inputIDsTensor, err = ort.NewTensor(ort.NewShape(1, int64(maxTokens)), make([]int64, maxTokens))
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.textOutputTensor, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(textModelPath,
		[]string{"input_ids"}, []string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDsTensor}, []ort.ArbitraryTensor{e.textOutputTensor}, nil)
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create text session: %w", err)
	}

	pixels := make([]float32, 3*clipImageSize*clipImageSize)
	e.pixelTensor, err = ort.NewTensor(ort.NewShape(1, 3, clipImageSize, clipImageSize), pixels)
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create pixel tensor: %w", err)
	}
	e.imageOutputTensor, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.imageSession, err = ort.NewAdvancedSession(imageModelPath,
		[]string{"pixel_values"}, []string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor}, []ort.ArbitraryTensor{e.imageOutputTensor}, nil)
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create image session: %w", err)
	}
	return e, nil
}

// EmbedText returns the unit-normalized text embedding.
func (e *ClipEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get("text:" + text); ok {
		return cached, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDsTensor.GetData(), ids)
	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("%w: text inference: %v", ErrUnavailable, err)
	}
	out := make([]float32, e.dimensions)
	copy(out, e.textOutputTensor.GetData())
	utils.NormalizeL2(out)
	e.cache.Set("text:"+text, out)
	return out, nil
}

// EmbedImage decodes, preprocesses, and embeds the image at path.
func (e *ClipEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if cached, ok := e.cache.Get("image:" + path); ok {
		return cached, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}
	img, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	preprocessInto(img, e.pixelTensor.GetData())
	if err := e.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("%w: image inference: %v", ErrUnavailable, err)
	}
	out := make([]float32, e.dimensions)
	copy(out, e.imageOutputTensor.GetData())
	utils.NormalizeL2(out)
	e.cache.Set("image:"+path, out)
	return out, nil
}

// preprocessInto scales img to 224x224 with nearest-neighbor sampling and
// writes CHW channel-normalized pixel values into dst.
func preprocessInto(img image.Image, dst []float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := clipImageSize * clipImageSize
	for y := 0; y < clipImageSize; y++ {
		srcY := b.Min.Y + y*h/clipImageSize
		for x := 0; x < clipImageSize; x++ {
			srcX := b.Min.X + x*w/clipImageSize
			r, g, bl, _ := img.At(srcX, srcY).RGBA()
			i := y*clipImageSize + x
			dst[i] = (float32(r)/65535 - clipMean[0]) / clipStd[0]
			dst[plane+i] = (float32(g)/65535 - clipMean[1]) / clipStd[1]
			dst[2*plane+i] = (float32(bl)/65535 - clipMean[2]) / clipStd[2]
		}
	}
}

// Dimensions returns the embedding dimension.
func (e *ClipEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the ONNX sessions and tensors.
func (e *ClipEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroy()
	return nil
}

func (e *ClipEmbedder) destroy() {
	if e.textSession != nil {
		e.textSession.Destroy()
		e.textSession = nil
	}
	if e.imageSession != nil {
		e.imageSession.Destroy()
		e.imageSession = nil
	}
	e.destroyTensors()
}

func (e *ClipEmbedder) destroyTensors() {
	for _, t := range []*ort.Tensor[int64]{e.inputIDsTensor} {
		if t != nil {
			t.Destroy()
		}
	}
	for _, t := range []*ort.Tensor[float32]{e.textOutputTensor, e.pixelTensor, e.imageOutputTensor} {
		if t != nil {
			t.Destroy()
		}
	}
	e.inputIDsTensor = nil
	e.textOutputTensor = nil
	e.pixelTensor = nil
	e.imageOutputTensor = nil
}
