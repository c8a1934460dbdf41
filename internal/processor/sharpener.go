package processor

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/registry"
)

// Sharpener applies unsharp masking through the sharpen capability.
type Sharpener struct {
	reg    *registry.Registry
	amount float64
}

// NewSharpener validates the sharpening amount, which must lie in
// [0.5, 3.0].
func NewSharpener(reg *registry.Registry, amount float64) (*Sharpener, error) {
	if amount < 0.5 || amount > 3.0 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("amount must be between 0.5 and 3.0, got %g", amount), nil)
	}
	return &Sharpener{reg: reg, amount: amount}, nil
}

// Name identifies the processor
func (s *Sharpener) Name() string { return "sharpen" }

// Kind names the backing capability
func (s *Sharpener) Kind() registry.Kind { return registry.KindSharpen }

// Process sharpens the image. The alpha plane of BGRA inputs is excluded
// from the mask so edge halos never leak into transparency.
func (s *Sharpener) Process(ctx context.Context, img gocv.Mat) (gocv.Mat, error) {
	type sharpener interface {
		Sharpen(img gocv.Mat, amount float64) (gocv.Mat, error)
	}
	backend, err := model[sharpener](ctx, s.reg, registry.KindSharpen)
	if err != nil {
		return gocv.Mat{}, err
	}

	if img.Channels() != 4 {
		out, err := backend.Sharpen(img, s.amount)
		if err != nil {
			return gocv.Mat{}, apperrors.NewProcessingError("sharpening failed", err)
		}
		return out, nil
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)

	sharpened, err := backend.Sharpen(bgr, s.amount)
	if err != nil {
		return gocv.Mat{}, apperrors.NewProcessingError("sharpening failed", err)
	}
	defer sharpened.Close()
	return reattachAlpha(img, sharpened), nil
}
