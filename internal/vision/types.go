package vision

import (
	"image"
	"sort"
)

// Point represents a 2D pixel coordinate
type Point struct {
	X, Y float32
}

// Box represents an axis-aligned bounding box in pixel coordinates,
// with X1 < X2 and Y1 < Y2.
type Box struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b Box) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns box area
func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

// Rect converts the box to an integer rectangle, rounding outward.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2+0.5), int(b.Y2+0.5))
}

// Expand grows the box by ratio on each side, clamped to the image bounds.
func (b Box) Expand(ratio float32, imgWidth, imgHeight int) Box {
	dw := b.Width() * ratio
	dh := b.Height() * ratio
	out := Box{
		X1: b.X1 - dw,
		Y1: b.Y1 - dh,
		X2: b.X2 + dw,
		Y2: b.Y2 + dh,
	}
	if out.X1 < 0 {
		out.X1 = 0
	}
	if out.Y1 < 0 {
		out.Y1 = 0
	}
	if out.X2 > float32(imgWidth) {
		out.X2 = float32(imgWidth)
	}
	if out.Y2 > float32(imgHeight) {
		out.Y2 = float32(imgHeight)
	}
	return out
}

// Detection is one detected object
type Detection struct {
	Box        Box
	Label      string
	ClassID    int
	Confidence float32
}

// SortByConfidence orders detections by descending confidence in place.
func SortByConfidence(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
}
