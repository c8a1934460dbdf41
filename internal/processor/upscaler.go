package processor

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/imaging"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/vision"
)

// Upscaler enlarges images through the upscale capability.
type Upscaler struct {
	reg   *registry.Registry
	scale int
}

// NewUpscaler validates the scale factor and builds the processor. Only
// factors 2 and 4 are supported.
func NewUpscaler(reg *registry.Registry, scale int) (*Upscaler, error) {
	if scale != 2 && scale != 4 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("scale must be 2 or 4, got %d", scale), nil)
	}
	return &Upscaler{reg: reg, scale: scale}, nil
}

// Name identifies the processor
func (u *Upscaler) Name() string { return "upscale" }

// Kind names the backing capability
func (u *Upscaler) Kind() registry.Kind { return registry.KindUpscale }

// Process returns the image enlarged by exactly the configured factor. An
// alpha plane is resampled separately and reattached.
func (u *Upscaler) Process(ctx context.Context, img gocv.Mat) (gocv.Mat, error) {
	backend, err := model[vision.UpscaleModel](ctx, u.reg, registry.KindUpscale)
	if err != nil {
		return gocv.Mat{}, err
	}

	bgr := imaging.EnsureBGR(img)
	defer bgr.Close()

	upscaled, err := backend.Upscale(bgr, u.scale)
	if err != nil {
		return gocv.Mat{}, apperrors.NewProcessingError("upscaling failed", err)
	}

	if img.Channels() != 4 {
		return upscaled, nil
	}
	defer upscaled.Close()
	return reattachAlpha(img, upscaled), nil
}

// reattachAlpha resamples the source alpha plane to the processed image's
// size and merges it in.
func reattachAlpha(src gocv.Mat, processed gocv.Mat) gocv.Mat {
	srcChannels := gocv.Split(src)
	defer func() {
		for i := range srcChannels {
			srcChannels[i].Close()
		}
	}()

	alpha := gocv.NewMat()
	defer alpha.Close()
	gocv.Resize(srcChannels[3], &alpha, image.Pt(processed.Cols(), processed.Rows()), 0, 0, gocv.InterpolationCubic)

	outChannels := gocv.Split(processed)
	defer func() {
		for i := range outChannels {
			outChannels[i].Close()
		}
	}()

	out := gocv.NewMat()
	gocv.Merge([]gocv.Mat{outChannels[0], outChannels[1], outChannels[2], alpha}, &out)
	return out
}
