package processor

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/imaging"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/vision"
)

// segmentMaxExpand caps how far a detection box may be grown before it is
// handed to the segmentation prompt.
const segmentMaxExpand = 0.5

// Segmenter isolates single objects through the segmentation capability,
// prompted either by a detected class or by explicit click points.
type Segmenter struct {
	reg *registry.Registry
}

// NewSegmenter builds the processor.
func NewSegmenter(reg *registry.Registry) *Segmenter {
	return &Segmenter{reg: reg}
}

// SegmentObject finds the most confident detection of className, expands
// its box by expandRatio (clamped to [0, 0.5]) and segments inside it.
// The result is a BGRA cutout with the mask as alpha.
func (s *Segmenter) SegmentObject(ctx context.Context, img gocv.Mat, className string, expandRatio float64) (gocv.Mat, error) {
	if className == "" {
		return gocv.Mat{}, apperrors.NewValidationError("class_name is required", nil)
	}
	if expandRatio < 0 {
		expandRatio = 0
	}
	if expandRatio > segmentMaxExpand {
		expandRatio = segmentMaxExpand
	}

	detector, err := NewDetector(s.reg, 0.25, []string{className})
	if err != nil {
		return gocv.Mat{}, err
	}
	dets, err := detector.Detect(ctx, img)
	if err != nil {
		return gocv.Mat{}, err
	}
	if len(dets) == 0 {
		return gocv.Mat{}, apperrors.NewNotFoundError(
			fmt.Sprintf("no %q found in the image", className), nil)
	}

	backend, err := model[vision.SegmentationModel](ctx, s.reg, registry.KindSegmentation)
	if err != nil {
		return gocv.Mat{}, err
	}

	box := dets[0].Box.Expand(float32(expandRatio), img.Cols(), img.Rows())
	mask, err := backend.SegmentBox(img, box)
	if err != nil {
		return gocv.Mat{}, apperrors.NewProcessingError("segmentation failed", err)
	}
	defer mask.Close()

	return applyMask(img, mask), nil
}

// SegmentByPoints segments the object indicated by click prompts. Labels
// are 1 for foreground and 0 for background; the two slices must have
// equal, non-zero length.
func (s *Segmenter) SegmentByPoints(ctx context.Context, img gocv.Mat, points []vision.Point, labels []int) (gocv.Mat, error) {
	if len(points) == 0 {
		return gocv.Mat{}, apperrors.NewValidationError("at least one point is required", nil)
	}
	if len(points) != len(labels) {
		return gocv.Mat{}, apperrors.NewValidationError(
			fmt.Sprintf("points and labels must have equal length, got %d and %d", len(points), len(labels)), nil)
	}
	for _, l := range labels {
		if l != 0 && l != 1 {
			return gocv.Mat{}, apperrors.NewValidationError(
				fmt.Sprintf("labels must be 0 or 1, got %d", l), nil)
		}
	}
	for _, p := range points {
		if p.X < 0 || p.Y < 0 || p.X >= float32(img.Cols()) || p.Y >= float32(img.Rows()) {
			return gocv.Mat{}, apperrors.NewValidationError(
				fmt.Sprintf("point (%g, %g) lies outside the image", p.X, p.Y), nil)
		}
	}

	backend, err := model[vision.SegmentationModel](ctx, s.reg, registry.KindSegmentation)
	if err != nil {
		return gocv.Mat{}, err
	}

	mask, err := backend.SegmentPoints(img, points, labels)
	if err != nil {
		return gocv.Mat{}, apperrors.NewProcessingError("segmentation failed", err)
	}
	defer mask.Close()

	return applyMask(img, mask), nil
}

// applyMask attaches a binary mask as the alpha plane of a BGRA copy.
func applyMask(img gocv.Mat, mask gocv.Mat) gocv.Mat {
	bgr := imaging.EnsureBGR(img)
	defer bgr.Close()

	channels := gocv.Split(bgr)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()

	out := gocv.NewMat()
	gocv.Merge([]gocv.Mat{channels[0], channels[1], channels[2], mask}, &out)
	return out
}
