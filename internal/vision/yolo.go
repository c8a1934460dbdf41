package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"go-image-studio/internal/inference"
)

const (
	yoloInputSize    = 640
	yoloIoUThreshold = 0.45
)

// cocoClassNames are the 80 COCO labels YOLOv8 is trained on, indexed by
// class ID.
var cocoClassNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train",
	"truck", "boat", "traffic light", "fire hydrant", "stop sign",
	"parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag",
	"tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot",
	"hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote",
	"keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

// YOLODetector runs a YOLOv8 ONNX model for general object detection.
type YOLODetector struct {
	session *inference.Session
}

// NewYOLODetector creates a detector from a YOLOv8 ONNX model file.
func NewYOLODetector(modelPath string, accelerated bool) (*YOLODetector, error) {
	session, err := inference.NewSession(modelPath, []string{"images"}, []string{"output0"}, accelerated)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection model: %w", err)
	}
	return &YOLODetector{session: session}, nil
}

// ClassNames returns the COCO label set.
func (d *YOLODetector) ClassNames() []string {
	return cocoClassNames
}

// Detect runs inference and decodes detections above the confidence
// threshold, NMS-filtered and ordered by descending confidence.
func (d *YOLODetector) Detect(img gocv.Mat, confidence float32) ([]Detection, error) {
	boxed, lb := letterboxImage(img, yoloInputSize)
	defer boxed.Close()

	inputData := chwFloat(boxed, image.Pt(yoloInputSize, yoloInputSize), nil, nil)
	inputTensor, err := inference.CreateTensor([]int64{1, 3, yoloInputSize, yoloInputSize}, inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	numClasses := int64(len(cocoClassNames))
	numAnchors := int64(8400)
	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 4 + numClasses, numAnchors})
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := d.session.Run(
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
	); err != nil {
		return nil, fmt.Errorf("detection inference failed: %w", err)
	}

	dets := d.decode(outputTensor.GetData(), int(numClasses), int(numAnchors), lb, img.Cols(), img.Rows(), confidence)
	return NonMaxSuppression(dets, yoloIoUThreshold), nil
}

// decode parses the [1, 4+classes, anchors] output layout: rows 0-3 hold
// cx, cy, w, h in letterboxed pixels, remaining rows hold per-class scores.
func (d *YOLODetector) decode(data []float32, numClasses, numAnchors int, lb letterbox, imgW, imgH int, confidence float32) []Detection {
	dets := make([]Detection, 0, 32)
	for a := 0; a < numAnchors; a++ {
		bestScore := float32(0)
		bestClass := 0
		for c := 0; c < numClasses; c++ {
			score := data[(4+c)*numAnchors+a]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestScore < confidence {
			continue
		}

		cx := data[a]
		cy := data[numAnchors+a]
		w := data[2*numAnchors+a]
		h := data[3*numAnchors+a]

		box := Box{
			X1: (cx - w/2 - lb.padX) / lb.scale,
			Y1: (cy - h/2 - lb.padY) / lb.scale,
			X2: (cx + w/2 - lb.padX) / lb.scale,
			Y2: (cy + h/2 - lb.padY) / lb.scale,
		}
		box = box.Expand(0, imgW, imgH)
		if box.Width() <= 0 || box.Height() <= 0 {
			continue
		}

		dets = append(dets, Detection{
			Box:        box,
			Label:      cocoClassNames[bestClass],
			ClassID:    bestClass,
			Confidence: bestScore,
		})
	}
	return dets
}

// Close releases the underlying session.
func (d *YOLODetector) Close() error {
	return d.session.Destroy()
}
