package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"go-image-studio/internal/inference"
)

const u2netInputSize = 320

// U2NetMatting runs a U2-Net ONNX model to estimate a foreground alpha
// matte.
type U2NetMatting struct {
	session *inference.Session
}

// NewU2NetMatting creates a matting model from a U2-Net ONNX file.
func NewU2NetMatting(modelPath string, accelerated bool) (*U2NetMatting, error) {
	session, err := inference.NewSession(modelPath, []string{"input.1"}, []string{"1959"}, accelerated)
	if err != nil {
		return nil, fmt.Errorf("failed to load matting model: %w", err)
	}
	return &U2NetMatting{session: session}, nil
}

// Matte returns a soft 8UC1 alpha matte at input resolution.
func (m *U2NetMatting) Matte(img gocv.Mat) (gocv.Mat, error) {
	// U2-Net uses ImageNet normalization on the [0,1] range, which on raw
	// bytes is (pixel/255 - mean) / std.
	mean := [3]float32{0.485 * 255, 0.456 * 255, 0.406 * 255}
	std := [3]float32{0.229 * 255, 0.224 * 255, 0.225 * 255}
	inputData := chwFloat(img, image.Pt(u2netInputSize, u2netInputSize), &mean, &std)

	inputTensor, err := inference.CreateTensor([]int64{1, 3, u2netInputSize, u2netInputSize}, inputData)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 1, u2netInputSize, u2netInputSize})
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := m.session.Run(
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
	); err != nil {
		return gocv.Mat{}, fmt.Errorf("matting inference failed: %w", err)
	}

	// Min-max normalize the saliency map before quantizing to alpha.
	data := outputTensor.GetData()
	minV, maxV := data[0], data[0]
	for _, v := range data {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	span := maxV - minV
	if span == 0 {
		span = 1
	}
	bytes := make([]byte, len(data))
	for i, v := range data {
		bytes[i] = clampByte((v - minV) / span * 255)
	}

	small, err := gocv.NewMatFromBytes(u2netInputSize, u2netInputSize, gocv.MatTypeCV8UC1, bytes)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to build matte: %w", err)
	}
	defer small.Close()

	matte := gocv.NewMat()
	gocv.Resize(small, &matte, image.Pt(img.Cols(), img.Rows()), 0, 0, gocv.InterpolationLinear)
	return matte, nil
}

// Close releases the underlying session.
func (m *U2NetMatting) Close() error {
	return m.session.Destroy()
}
