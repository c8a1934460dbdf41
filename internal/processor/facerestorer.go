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

// FaceRestorer enhances facial detail through the face restoration
// capability, blending the restored image against the original.
type FaceRestorer struct {
	reg     *registry.Registry
	upscale int
	weight  float64
}

// NewFaceRestorer validates parameters and builds the processor. Upscale is
// an optional integer output magnification in [1,4]; weight balances the
// restored image against the original in [0,1].
func NewFaceRestorer(reg *registry.Registry, upscale int, weight float64) (*FaceRestorer, error) {
	if upscale < 1 || upscale > 4 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("upscale must be between 1 and 4, got %d", upscale), nil)
	}
	if weight < 0 || weight > 1 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("weight must be between 0.0 and 1.0, got %g", weight), nil)
	}
	return &FaceRestorer{reg: reg, upscale: upscale, weight: weight}, nil
}

// Name identifies the processor
func (f *FaceRestorer) Name() string { return "enhance_face" }

// Kind names the backing capability
func (f *FaceRestorer) Kind() registry.Kind { return registry.KindFaceRestore }

// Process restores facial detail. With weight 0 the original image passes
// through untouched apart from the optional upscale.
func (f *FaceRestorer) Process(ctx context.Context, img gocv.Mat) (gocv.Mat, error) {
	backend, err := model[vision.FaceRestoreModel](ctx, f.reg, registry.KindFaceRestore)
	if err != nil {
		return gocv.Mat{}, err
	}

	bgr := imaging.EnsureBGR(img)
	defer bgr.Close()

	restored, err := backend.Restore(bgr)
	if err != nil {
		return gocv.Mat{}, apperrors.NewProcessingError("face restoration failed", err)
	}
	defer restored.Close()

	blended := gocv.NewMat()
	gocv.AddWeighted(restored, f.weight, bgr, 1-f.weight, 0, &blended)

	if f.upscale > 1 {
		resized := gocv.NewMat()
		gocv.Resize(blended, &resized, image.Pt(img.Cols()*f.upscale, img.Rows()*f.upscale), 0, 0, gocv.InterpolationLanczos4)
		blended.Close()
		blended = resized
	}

	if img.Channels() != 4 {
		return blended, nil
	}
	defer blended.Close()
	return reattachAlpha(img, blended), nil
}
