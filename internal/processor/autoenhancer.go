package processor

import (
	"context"

	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/registry"
)

// AutoEnhancer applies parameter-free contrast and color correction
// through the auto-enhance capability.
type AutoEnhancer struct {
	reg *registry.Registry
}

// NewAutoEnhancer builds the processor. It takes no tuning parameters.
func NewAutoEnhancer(reg *registry.Registry) *AutoEnhancer {
	return &AutoEnhancer{reg: reg}
}

// Name identifies the processor
func (a *AutoEnhancer) Name() string { return "auto_enhance" }

// Kind names the backing capability
func (a *AutoEnhancer) Kind() registry.Kind { return registry.KindAutoEnhance }

// Process enhances contrast and white balance deterministically.
func (a *AutoEnhancer) Process(ctx context.Context, img gocv.Mat) (gocv.Mat, error) {
	type enhancer interface {
		Enhance(img gocv.Mat) (gocv.Mat, error)
	}
	backend, err := model[enhancer](ctx, a.reg, registry.KindAutoEnhance)
	if err != nil {
		return gocv.Mat{}, err
	}

	out, err := backend.Enhance(img)
	if err != nil {
		return gocv.Mat{}, apperrors.NewProcessingError("auto enhancement failed", err)
	}
	return out, nil
}
