package processor

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/registry"
)

// Denoiser removes noise through the denoise capability.
type Denoiser struct {
	reg      *registry.Registry
	strength float32
}

// NewDenoiser validates the filter strength, which must lie in [3,20].
func NewDenoiser(reg *registry.Registry, strength float32) (*Denoiser, error) {
	if strength < 3 || strength > 20 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("strength must be between 3 and 20, got %g", strength), nil)
	}
	return &Denoiser{reg: reg, strength: strength}, nil
}

// Name identifies the processor
func (d *Denoiser) Name() string { return "denoise" }

// Kind names the backing capability
func (d *Denoiser) Kind() registry.Kind { return registry.KindDenoise }

// Process filters the color planes. An alpha plane carries no sensor noise
// worth filtering, so it passes through untouched.
func (d *Denoiser) Process(ctx context.Context, img gocv.Mat) (gocv.Mat, error) {
	type denoiser interface {
		Denoise(img gocv.Mat, strength float32) (gocv.Mat, error)
	}
	backend, err := model[denoiser](ctx, d.reg, registry.KindDenoise)
	if err != nil {
		return gocv.Mat{}, err
	}

	if img.Channels() != 4 {
		out, err := backend.Denoise(img, d.strength)
		if err != nil {
			return gocv.Mat{}, apperrors.NewProcessingError("denoising failed", err)
		}
		return out, nil
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)

	denoised, err := backend.Denoise(bgr, d.strength)
	if err != nil {
		return gocv.Mat{}, apperrors.NewProcessingError("denoising failed", err)
	}
	defer denoised.Close()
	return reattachAlpha(img, denoised), nil
}
