package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestBoxGeometry(t *testing.T) {
	b := Box{X1: 10, Y1: 20, X2: 40, Y2: 60}
	assert.Equal(t, float32(30), b.Width())
	assert.Equal(t, float32(40), b.Height())
	assert.Equal(t, float32(1200), b.Area())

	r := b.Rect()
	assert.Equal(t, 10, r.Min.X)
	assert.Equal(t, 60, r.Max.Y)
}

func TestBoxExpandClampsToImage(t *testing.T) {
	b := Box{X1: 10, Y1: 10, X2: 90, Y2: 90}
	out := b.Expand(0.5, 100, 100)

	assert.Equal(t, float32(0), out.X1)
	assert.Equal(t, float32(0), out.Y1)
	assert.Equal(t, float32(100), out.X2)
	assert.Equal(t, float32(100), out.Y2)
}

func TestBoxExpandZeroRatioStillClamps(t *testing.T) {
	b := Box{X1: -5, Y1: 2, X2: 120, Y2: 50}
	out := b.Expand(0, 100, 60)

	assert.Equal(t, float32(0), out.X1)
	assert.Equal(t, float32(100), out.X2)
	assert.Equal(t, float32(2), out.Y1)
	assert.Equal(t, float32(50), out.Y2)
}

func TestSortByConfidence(t *testing.T) {
	dets := []Detection{
		{Label: "low", Confidence: 0.2},
		{Label: "high", Confidence: 0.9},
		{Label: "mid", Confidence: 0.5},
	}
	SortByConfidence(dets)
	assert.Equal(t, "high", dets[0].Label)
	assert.Equal(t, "mid", dets[1].Label)
	assert.Equal(t, "low", dets[2].Label)
}

func TestIoU(t *testing.T) {
	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	assert.Equal(t, float32(1), iou(a, a))
	assert.Equal(t, float32(0), iou(a, Box{X1: 20, Y1: 20, X2: 30, Y2: 30}))

	// Half overlap: inter 50, union 150.
	b := Box{X1: 5, Y1: 0, X2: 15, Y2: 10}
	assert.InDelta(t, 1.0/3.0, float64(iou(a, b)), 1e-6)
}

func TestNonMaxSuppressionKeepsBestPerCluster(t *testing.T) {
	dets := []Detection{
		{Box: Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, ClassID: 0, Confidence: 0.6},
		{Box: Box{X1: 1, Y1: 1, X2: 11, Y2: 11}, ClassID: 0, Confidence: 0.9},
		{Box: Box{X1: 50, Y1: 50, X2: 60, Y2: 60}, ClassID: 0, Confidence: 0.8},
	}
	kept := NonMaxSuppression(dets, 0.45)

	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Confidence)
	assert.Equal(t, float32(0.8), kept[1].Confidence)
}

func TestNonMaxSuppressionIsClassAware(t *testing.T) {
	// Same location, different classes: both survive.
	dets := []Detection{
		{Box: Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, ClassID: 0, Confidence: 0.9},
		{Box: Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, ClassID: 1, Confidence: 0.8},
	}
	kept := NonMaxSuppression(dets, 0.45)
	assert.Len(t, kept, 2)
}

func TestNonMaxSuppressionEmpty(t *testing.T) {
	assert.Empty(t, NonMaxSuppression(nil, 0.45))
}

func TestLetterboxFitWideImage(t *testing.T) {
	lb := letterboxFit(1280, 640, 640)
	assert.InDelta(t, 0.5, float64(lb.scale), 1e-6)
	assert.InDelta(t, 0, float64(lb.padX), 1e-6)
	assert.InDelta(t, 160, float64(lb.padY), 1e-6)
}

func TestLetterboxFitTallImage(t *testing.T) {
	lb := letterboxFit(320, 640, 640)
	assert.InDelta(t, 1.0, float64(lb.scale), 1e-6)
	assert.InDelta(t, 160, float64(lb.padX), 1e-6)
	assert.InDelta(t, 0, float64(lb.padY), 1e-6)
}

func TestLetterboxImageFillsPadWithGray(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), 32, 64, gocv.MatTypeCV8UC3)
	defer src.Close()

	canvas, lb := letterboxImage(src, 64)
	defer canvas.Close()

	assert.Equal(t, 64, canvas.Cols())
	assert.Equal(t, 64, canvas.Rows())
	assert.InDelta(t, 16, float64(lb.padY), 1e-6)

	// Top pad row is the neutral fill, center row carries the image.
	assert.Equal(t, uint8(114), canvas.GetUCharAt(0, 32*3))
	assert.Equal(t, uint8(255), canvas.GetUCharAt(32, 32*3+2))
}

func TestCHWRoundtrip(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 120, 210, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer src.Close()

	data := chwFloat(src, image.Pt(4, 4), nil, nil)
	require.Len(t, data, 3*4*4)

	// RGB planar order scaled to [0,1].
	assert.InDelta(t, 210.0/255.0, float64(data[0]), 1e-6)
	assert.InDelta(t, 120.0/255.0, float64(data[16]), 1e-6)
	assert.InDelta(t, 30.0/255.0, float64(data[32]), 1e-6)

	back := chwToMat(data, 4, 4)
	defer back.Close()
	assert.Equal(t, src.ToBytes(), back.ToBytes())
}

func TestCHWFloatAppliesMeanStd(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 100, 100, 0), 2, 2, gocv.MatTypeCV8UC3)
	defer src.Close()

	mean := [3]float32{50, 50, 50}
	std := [3]float32{25, 25, 25}
	data := chwFloat(src, image.Pt(2, 2), &mean, &std)

	assert.InDelta(t, 2.0, float64(data[0]), 1e-6)
}

func TestClampByte(t *testing.T) {
	assert.Equal(t, byte(0), clampByte(-10))
	assert.Equal(t, byte(255), clampByte(300))
	assert.Equal(t, byte(128), clampByte(127.6))
}

func TestThresholdMask(t *testing.T) {
	mask := thresholdMask([]float32{1.5, -0.2, 0, 3}, 2, 2)
	defer mask.Close()

	assert.Equal(t, uint8(255), mask.GetUCharAt(0, 0))
	assert.Equal(t, uint8(0), mask.GetUCharAt(0, 1))
	assert.Equal(t, uint8(0), mask.GetUCharAt(1, 0))
	assert.Equal(t, uint8(255), mask.GetUCharAt(1, 1))
}

// yoloOutput builds a [4+classes, anchors] tensor with a single anchor
// carrying a detection.
func yoloOutput(numClasses, numAnchors, anchor, class int, cx, cy, w, h, score float32) []float32 {
	data := make([]float32, (4+numClasses)*numAnchors)
	data[anchor] = cx
	data[numAnchors+anchor] = cy
	data[2*numAnchors+anchor] = w
	data[3*numAnchors+anchor] = h
	data[(4+class)*numAnchors+anchor] = score
	return data
}

func TestYOLODecodeMapsBackThroughLetterbox(t *testing.T) {
	d := &YOLODetector{}
	numClasses := len(cocoClassNames)
	numAnchors := 10

	// 1280x640 source letterboxed into 640: scale 0.5, padY 160.
	lb := letterboxFit(1280, 640, 640)
	data := yoloOutput(numClasses, numAnchors, 3, 2, 320, 320, 100, 50, 0.95)

	dets := d.decode(data, numClasses, numAnchors, lb, 1280, 640, 0.5)
	require.Len(t, dets, 1)

	det := dets[0]
	assert.Equal(t, "car", det.Label)
	assert.Equal(t, 2, det.ClassID)
	assert.InDelta(t, 0.95, float64(det.Confidence), 1e-6)
	assert.InDelta(t, 540, float64(det.Box.X1), 0.5)
	assert.InDelta(t, 740, float64(det.Box.X2), 0.5)
	assert.InDelta(t, 270, float64(det.Box.Y1), 0.5)
	assert.InDelta(t, 370, float64(det.Box.Y2), 0.5)
}

func TestYOLODecodeRespectsConfidenceThreshold(t *testing.T) {
	d := &YOLODetector{}
	numClasses := len(cocoClassNames)
	numAnchors := 10

	lb := letterboxFit(640, 640, 640)
	data := yoloOutput(numClasses, numAnchors, 0, 0, 320, 320, 50, 50, 0.3)

	assert.Empty(t, d.decode(data, numClasses, numAnchors, lb, 640, 640, 0.5))
}

func TestYOLODecodeDropsDegenerateBoxes(t *testing.T) {
	d := &YOLODetector{}
	numClasses := len(cocoClassNames)
	numAnchors := 4

	// Box entirely inside the left pad region clamps to zero width.
	lb := letterboxFit(320, 640, 640)
	data := yoloOutput(numClasses, numAnchors, 0, 0, 50, 320, 40, 40, 0.9)

	assert.Empty(t, d.decode(data, numClasses, numAnchors, lb, 320, 640, 0.5))
}
