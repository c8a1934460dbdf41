package vision

import (
	"gocv.io/x/gocv"
)

// DetectionModel locates objects in an image. Implementations must not
// mutate the input Mat.
type DetectionModel interface {
	// Detect returns detections above the confidence threshold, ordered by
	// descending confidence.
	Detect(img gocv.Mat, confidence float32) ([]Detection, error)
	// ClassNames lists the labels the model can produce, indexed by class ID.
	ClassNames() []string
}

// UpscaleModel enlarges an image by an integer factor. The output dimensions
// are exactly factor times the input dimensions.
type UpscaleModel interface {
	Upscale(img gocv.Mat, factor int) (gocv.Mat, error)
}

// FaceRestoreModel enhances facial detail. The returned Mat has the same
// dimensions as the input; compositing and upscaling happen downstream.
type FaceRestoreModel interface {
	Restore(img gocv.Mat) (gocv.Mat, error)
}

// SegmentationModel produces a binary mask (8UC1, 0 or 255) at input
// resolution from a box or point prompt.
type SegmentationModel interface {
	SegmentBox(img gocv.Mat, box Box) (gocv.Mat, error)
	SegmentPoints(img gocv.Mat, points []Point, labels []int) (gocv.Mat, error)
}

// MattingModel estimates a soft alpha matte (8UC1, 0-255) separating the
// salient foreground from the background.
type MattingModel interface {
	Matte(img gocv.Mat) (gocv.Mat, error)
}

// InpaintModel fills the masked region of an image with plausible content.
// The mask is 8UC1 with non-zero pixels marking the region to fill.
type InpaintModel interface {
	Inpaint(img gocv.Mat, mask gocv.Mat) (gocv.Mat, error)
}
