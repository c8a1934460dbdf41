package processor

import (
	"context"

	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/imaging"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/vision"
)

// BackgroundRemover cuts the salient foreground out of an image through
// the background removal capability. Output is always BGRA with the matte
// as alpha.
type BackgroundRemover struct {
	reg *registry.Registry
}

// NewBackgroundRemover builds the processor.
func NewBackgroundRemover(reg *registry.Registry) *BackgroundRemover {
	return &BackgroundRemover{reg: reg}
}

// Name identifies the processor
func (b *BackgroundRemover) Name() string { return "remove_background" }

// Kind names the backing capability
func (b *BackgroundRemover) Kind() registry.Kind { return registry.KindBackgroundRemoval }

// Process estimates the foreground matte and attaches it as alpha. A
// pre-existing alpha plane is replaced, not combined.
func (b *BackgroundRemover) Process(ctx context.Context, img gocv.Mat) (gocv.Mat, error) {
	backend, err := model[vision.MattingModel](ctx, b.reg, registry.KindBackgroundRemoval)
	if err != nil {
		return gocv.Mat{}, err
	}

	bgr := imaging.EnsureBGR(img)
	defer bgr.Close()

	matte, err := backend.Matte(bgr)
	if err != nil {
		return gocv.Mat{}, apperrors.NewProcessingError("background removal failed", err)
	}
	defer matte.Close()

	channels := gocv.Split(bgr)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()

	out := gocv.NewMat()
	gocv.Merge([]gocv.Mat{channels[0], channels[1], channels[2], matte}, &out)
	return out, nil
}
