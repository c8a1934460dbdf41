package processor

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/imaging"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/vision"
)

// boxPalette colors detection boxes by class so adjacent objects of
// different classes stay distinguishable.
var boxPalette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
	{R: 44, G: 153, B: 168, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 52, G: 69, B: 147, A: 255},
	{R: 100, G: 115, B: 255, A: 255},
	{R: 0, G: 24, B: 236, A: 255},
	{R: 132, G: 56, B: 255, A: 255},
	{R: 82, G: 0, B: 133, A: 255},
	{R: 203, G: 56, B: 255, A: 255},
	{R: 255, G: 149, B: 200, A: 255},
	{R: 255, G: 55, B: 199, A: 255},
}

// Detector locates objects through the detection capability, optionally
// restricted to an allow-list of class labels.
type Detector struct {
	reg       *registry.Registry
	threshold float32
	classes   map[string]bool
}

// NewDetector validates the confidence threshold, which must lie in [0,1].
// Zero means every detection passes. An empty class list means all classes
// pass.
func NewDetector(reg *registry.Registry, threshold float32, classes []string) (*Detector, error) {
	if threshold < 0 || threshold > 1 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("confidence threshold must be between 0.0 and 1.0, got %g", threshold), nil)
	}

	var allowed map[string]bool
	if len(classes) > 0 {
		allowed = make(map[string]bool, len(classes))
		for _, c := range classes {
			allowed[c] = true
		}
	}
	return &Detector{reg: reg, threshold: threshold, classes: allowed}, nil
}

// Detect returns detections above the threshold, allow-list filtered and
// ordered by descending confidence.
func (d *Detector) Detect(ctx context.Context, img gocv.Mat) ([]vision.Detection, error) {
	backend, err := model[vision.DetectionModel](ctx, d.reg, registry.KindDetection)
	if err != nil {
		return nil, err
	}

	dets, err := backend.Detect(img, d.threshold)
	if err != nil {
		return nil, apperrors.NewProcessingError("detection failed", err)
	}

	if d.classes == nil {
		return dets, nil
	}
	filtered := dets[:0]
	for _, det := range dets {
		if d.classes[det.Label] {
			filtered = append(filtered, det)
		}
	}
	return filtered, nil
}

// Visualize draws labeled boxes over a copy of the image.
func (d *Detector) Visualize(img gocv.Mat, dets []vision.Detection) gocv.Mat {
	out := imaging.EnsureBGR(img)
	for _, det := range dets {
		c := boxPalette[det.ClassID%len(boxPalette)]
		rect := det.Box.Rect()
		gocv.Rectangle(&out, rect, c, 2)

		label := fmt.Sprintf("%s %.2f", det.Label, det.Confidence)
		origin := image.Pt(rect.Min.X, rect.Min.Y-6)
		if origin.Y < 12 {
			origin.Y = rect.Min.Y + 16
		}
		gocv.PutText(&out, label, origin, gocv.FontHersheySimplex, 0.5, c, 1)
	}
	return out
}
