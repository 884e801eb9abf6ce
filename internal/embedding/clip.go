//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/pkg/utils"
)

// CLIPEmbedder runs the CLIP text and image encoders with ONNX Runtime. Each encoder
// has its own session with pre-allocated tensors; calls on one encoder are serialized.
type CLIPEmbedder struct {
	dimensions    int
	contextLength int
	imageSize     int

	textSession *ort.AdvancedSession
	textInput   *ort.Tensor[int64]
	textOutput  *ort.Tensor[float32]
	textMu      sync.Mutex

	imageSession *ort.AdvancedSession
	imageInput   *ort.Tensor[float32]
	imageOutput  *ort.Tensor[float32]
	imageMu      sync.Mutex
}

// NewCLIPEmbedder creates both sessions. The ONNX environment is initialized on first use.
func NewCLIPEmbedder(cfg *config.EmbeddingConfig, contextLength int) (*CLIPEmbedder, error) {
	if cfg.TextModelPath == "" || cfg.ImageModelPath == "" {
		return nil, fmt.Errorf("text and image model paths are required")
	}
	if !ort.IsInitialized() {
		if cfg.SharedLibrary != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	e := &CLIPEmbedder{
		dimensions:    cfg.Dimensions,
		contextLength: contextLength,
		imageSize:     cfg.ImageSize,
	}
	if err := e.initText(cfg); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.initImage(cfg); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *CLIPEmbedder) initText(cfg *config.EmbeddingConfig) error {
	var err error
	e.textInput, err = ort.NewTensor(ort.NewShape(1, int64(e.contextLength)), make([]int64, e.contextLength))
	if err != nil {
		return fmt.Errorf("failed to create %s tensor: %w", cfg.TextInputName, err)
	}
	e.textOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create %s tensor: %w", cfg.TextOutputName, err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		cfg.TextModelPath,
		[]string{cfg.TextInputName},
		[]string{cfg.TextOutputName},
		[]ort.ArbitraryTensor{e.textInput},
		[]ort.ArbitraryTensor{e.textOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text session: %w", err)
	}
	return nil
}

func (e *CLIPEmbedder) initImage(cfg *config.EmbeddingConfig) error {
	var err error
	n := int64(e.imageSize)
	e.imageInput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, n, n))
	if err != nil {
		return fmt.Errorf("failed to create %s tensor: %w", cfg.ImageInputName, err)
	}
	e.imageOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create %s tensor: %w", cfg.ImageOutputName, err)
	}
	e.imageSession, err = ort.NewAdvancedSession(
		cfg.ImageModelPath,
		[]string{cfg.ImageInputName},
		[]string{cfg.ImageOutputName},
		[]ort.ArbitraryTensor{e.imageInput},
		[]ort.ArbitraryTensor{e.imageOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create image session: %w", err)
	}
	return nil
}

// EncodeText embeds exactly contextLength token ids.
func (e *CLIPEmbedder) EncodeText(ctx context.Context, ids []int64) ([]float32, error) {
	if len(ids) != e.contextLength {
		return nil, fmt.Errorf("expected %d token ids, got %d", e.contextLength, len(ids))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.textMu.Lock()
	defer e.textMu.Unlock()

	copy(e.textInput.GetData(), ids)
	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	return e.readOutput(e.textOutput), nil
}

// EncodeImage preprocesses img and embeds it.
func (e *CLIPEmbedder) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	pixels := Preprocess(img, e.imageSize)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.imageMu.Lock()
	defer e.imageMu.Unlock()

	copy(e.imageInput.GetData(), pixels)
	if err := e.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	return e.readOutput(e.imageOutput), nil
}

func (e *CLIPEmbedder) readOutput(t *ort.Tensor[float32]) []float32 {
	out := make([]float32, e.dimensions)
	copy(out, t.GetData())
	utils.NormalizeL2(out)
	return out
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the sessions and tensors.
func (e *CLIPEmbedder) Close() error {
	var err error
	for _, s := range []**ort.AdvancedSession{&e.textSession, &e.imageSession} {
		if *s != nil {
			if derr := (*s).Destroy(); derr != nil && err == nil {
				err = derr
			}
			*s = nil
		}
	}
	for _, t := range []**ort.Tensor[float32]{&e.textOutput, &e.imageInput, &e.imageOutput} {
		if *t != nil {
			_ = (*t).Destroy()
			*t = nil
		}
	}
	if e.textInput != nil {
		_ = e.textInput.Destroy()
		e.textInput = nil
	}
	return err
}
