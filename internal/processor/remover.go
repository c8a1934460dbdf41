package processor

import (
	"context"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/imaging"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/vision"
)

// ObjectRemover erases whole object classes from an image: detect, mask,
// inpaint.
type ObjectRemover struct {
	reg      *registry.Registry
	detector *Detector
}

// NewObjectRemover validates parameters and builds the processor. At least
// one class to remove is required; threshold bounds follow the detector.
func NewObjectRemover(reg *registry.Registry, classes []string, threshold float32) (*ObjectRemover, error) {
	if len(classes) == 0 {
		return nil, apperrors.NewValidationError("at least one class to remove is required", nil)
	}
	detector, err := NewDetector(reg, threshold, classes)
	if err != nil {
		return nil, err
	}
	return &ObjectRemover{reg: reg, detector: detector}, nil
}

// Remove erases every detected instance of the configured classes. When
// nothing is detected the input comes back unchanged rather than as an
// error: absence of the object is a valid outcome.
func (o *ObjectRemover) Remove(ctx context.Context, img gocv.Mat) (gocv.Mat, error) {
	dets, err := o.detector.Detect(ctx, img)
	if err != nil {
		return gocv.Mat{}, err
	}
	if len(dets) == 0 {
		return img.Clone(), nil
	}

	mask := gocv.NewMatWithSize(img.Rows(), img.Cols(), gocv.MatTypeCV8UC1)
	defer mask.Close()
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for _, det := range dets {
		gocv.Rectangle(&mask, det.Box.Rect(), white, -1)
	}

	// Grow the mask past object edges so the inpainting seam does not trace
	// the original silhouette.
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(5, 5))
	defer kernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.DilateWithParams(mask, &dilated, kernel, image.Pt(-1, -1), 2, gocv.BorderConstant, color.RGBA{})

	backend, err := model[vision.InpaintModel](ctx, o.reg, registry.KindObjectRemoval)
	if err != nil {
		return gocv.Mat{}, err
	}

	bgr := imaging.EnsureBGR(img)
	defer bgr.Close()

	out, err := backend.Inpaint(bgr, dilated)
	if err != nil {
		return gocv.Mat{}, apperrors.NewProcessingError("object removal failed", err)
	}
	return out, nil
}
