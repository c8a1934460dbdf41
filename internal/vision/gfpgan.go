package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"go-image-studio/internal/inference"
)

// gfpganInputSize is the fixed face-restoration network resolution.
const gfpganInputSize = 512

// GFPGANRestorer runs a GFPGAN ONNX model over the whole image. The image is
// resampled to the network resolution, restored, and brought back to its
// original dimensions.
type GFPGANRestorer struct {
	session *inference.Session
}

// NewGFPGANRestorer creates a restorer from a GFPGAN ONNX model file.
func NewGFPGANRestorer(modelPath string, accelerated bool) (*GFPGANRestorer, error) {
	session, err := inference.NewSession(modelPath, []string{"input"}, []string{"output"}, accelerated)
	if err != nil {
		return nil, fmt.Errorf("failed to load face restoration model: %w", err)
	}
	return &GFPGANRestorer{session: session}, nil
}

// Restore enhances facial detail. Output dimensions match the input.
func (r *GFPGANRestorer) Restore(img gocv.Mat) (gocv.Mat, error) {
	// GFPGAN expects inputs normalized to [-1, 1].
	mean := [3]float32{127.5, 127.5, 127.5}
	std := [3]float32{127.5, 127.5, 127.5}
	inputData := chwFloat(img, image.Pt(gfpganInputSize, gfpganInputSize), &mean, &std)

	inputTensor, err := inference.CreateTensor([]int64{1, 3, gfpganInputSize, gfpganInputSize}, inputData)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 3, gfpganInputSize, gfpganInputSize})
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := r.session.Run(
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
	); err != nil {
		return gocv.Mat{}, fmt.Errorf("face restoration inference failed: %w", err)
	}

	// Network output is in [-1, 1]; shift back to [0, 1] before quantizing.
	data := outputTensor.GetData()
	shifted := make([]float32, len(data))
	for i, v := range data {
		shifted[i] = (v + 1) / 2
	}
	restored := chwToMat(shifted, gfpganInputSize, gfpganInputSize)
	defer restored.Close()

	out := gocv.NewMat()
	gocv.Resize(restored, &out, image.Pt(img.Cols(), img.Rows()), 0, 0, gocv.InterpolationLanczos4)
	return out, nil
}

// Close releases the underlying session.
func (r *GFPGANRestorer) Close() error {
	return r.session.Destroy()
}
