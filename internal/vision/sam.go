package vision

import (
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"go-image-studio/internal/inference"
)

const (
	samInputSize     = 1024
	samEmbeddingDim  = 256
	samEmbeddingSize = 64
	samMaskInputSize = 256
)

// Prompt point labels in the decoder protocol.
const (
	samLabelBackground = 0
	samLabelForeground = 1
	samLabelBoxTopLeft = 2
	samLabelBoxBottom  = 3
	samLabelPadding    = -1
)

// SAMSegmenter runs a Segment Anything encoder/decoder ONNX pair. The
// decoder's mask-input scratch tensors are reused across calls, so all
// inference goes through an internal lock.
type SAMSegmenter struct {
	mu      sync.Mutex
	encoder *inference.Session
	decoder *inference.Session

	maskInput    *ort.Tensor[float32]
	hasMaskInput *ort.Tensor[float32]
}

// NewSAMSegmenter creates a segmenter from encoder and decoder ONNX files.
func NewSAMSegmenter(encoderPath, decoderPath string, accelerated bool) (*SAMSegmenter, error) {
	encoder, err := inference.NewSession(encoderPath, []string{"input_image"}, []string{"image_embeddings"}, accelerated)
	if err != nil {
		return nil, fmt.Errorf("failed to load segmentation encoder: %w", err)
	}
	decoder, err := inference.NewSession(
		decoderPath,
		[]string{"image_embeddings", "point_coords", "point_labels", "mask_input", "has_mask_input", "orig_im_size"},
		[]string{"masks"},
		accelerated,
	)
	if err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("failed to load segmentation decoder: %w", err)
	}

	maskInput, err := inference.CreateEmptyTensor[float32]([]int64{1, 1, samMaskInputSize, samMaskInputSize})
	if err != nil {
		encoder.Destroy()
		decoder.Destroy()
		return nil, fmt.Errorf("failed to create mask scratch tensor: %w", err)
	}
	hasMaskInput, err := inference.CreateTensor([]int64{1}, []float32{0})
	if err != nil {
		maskInput.Destroy()
		encoder.Destroy()
		decoder.Destroy()
		return nil, fmt.Errorf("failed to create mask flag tensor: %w", err)
	}

	return &SAMSegmenter{
		encoder:      encoder,
		decoder:      decoder,
		maskInput:    maskInput,
		hasMaskInput: hasMaskInput,
	}, nil
}

// SegmentBox segments the object inside the prompt box.
func (s *SAMSegmenter) SegmentBox(img gocv.Mat, box Box) (gocv.Mat, error) {
	scale := s.promptScale(img)
	coords := []float32{
		box.X1 * scale, box.Y1 * scale,
		box.X2 * scale, box.Y2 * scale,
	}
	labels := []float32{samLabelBoxTopLeft, samLabelBoxBottom}
	return s.segment(img, coords, labels)
}

// SegmentPoints segments the object indicated by click prompts. Labels are
// 1 for foreground points and 0 for background points; points and labels
// must have equal length.
func (s *SAMSegmenter) SegmentPoints(img gocv.Mat, points []Point, labels []int) (gocv.Mat, error) {
	if len(points) != len(labels) {
		return gocv.Mat{}, fmt.Errorf("points and labels length mismatch: %d vs %d", len(points), len(labels))
	}
	if len(points) == 0 {
		return gocv.Mat{}, fmt.Errorf("at least one prompt point is required")
	}

	scale := s.promptScale(img)
	coords := make([]float32, 0, (len(points)+1)*2)
	promptLabels := make([]float32, 0, len(points)+1)
	for i, p := range points {
		coords = append(coords, p.X*scale, p.Y*scale)
		if labels[i] == samLabelBackground {
			promptLabels = append(promptLabels, samLabelBackground)
		} else {
			promptLabels = append(promptLabels, samLabelForeground)
		}
	}
	// The decoder protocol requires a padding point when no box is given.
	coords = append(coords, 0, 0)
	promptLabels = append(promptLabels, samLabelPadding)

	return s.segment(img, coords, promptLabels)
}

// promptScale maps original-image pixel coordinates into the encoder's
// resized coordinate space.
func (s *SAMSegmenter) promptScale(img gocv.Mat) float32 {
	longSide := img.Cols()
	if img.Rows() > longSide {
		longSide = img.Rows()
	}
	return float32(samInputSize) / float32(longSide)
}

func (s *SAMSegmenter) segment(img gocv.Mat, coords, labels []float32) (gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	embeddings, err := s.encode(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer embeddings.Destroy()

	numPoints := int64(len(labels))
	coordsTensor, err := inference.CreateTensor([]int64{1, numPoints, 2}, coords)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create prompt tensor: %w", err)
	}
	defer coordsTensor.Destroy()

	labelsTensor, err := inference.CreateTensor([]int64{1, numPoints}, labels)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create label tensor: %w", err)
	}
	defer labelsTensor.Destroy()

	origSize, err := inference.CreateTensor([]int64{2}, []float32{float32(img.Rows()), float32(img.Cols())})
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create size tensor: %w", err)
	}
	defer origSize.Destroy()

	masks, err := inference.CreateEmptyTensor[float32]([]int64{1, 1, int64(img.Rows()), int64(img.Cols())})
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create mask tensor: %w", err)
	}
	defer masks.Destroy()

	if err := s.decoder.Run(
		[]ort.Value{embeddings, coordsTensor, labelsTensor, s.maskInput, s.hasMaskInput, origSize},
		[]ort.Value{masks},
	); err != nil {
		return gocv.Mat{}, fmt.Errorf("segmentation inference failed: %w", err)
	}

	return thresholdMask(masks.GetData(), img.Cols(), img.Rows()), nil
}

func (s *SAMSegmenter) encode(img gocv.Mat) (*ort.Tensor[float32], error) {
	// SAM uses ImageNet normalization on the raw 0-255 range.
	mean := [3]float32{123.675, 116.28, 103.53}
	std := [3]float32{58.395, 57.12, 57.375}

	// Fit the long side to the input square, pad the remainder with zeros.
	lb := letterboxFit(img.Cols(), img.Rows(), samInputSize)
	newW := int(float32(img.Cols())*lb.scale + 0.5)
	newH := int(float32(img.Rows())*lb.scale + 0.5)

	resizedData := chwFloat(img, image.Pt(newW, newH), &mean, &std)
	padded := make([]float32, 3*samInputSize*samInputSize)
	for c := 0; c < 3; c++ {
		for y := 0; y < newH; y++ {
			copy(
				padded[c*samInputSize*samInputSize+y*samInputSize:c*samInputSize*samInputSize+y*samInputSize+newW],
				resizedData[c*newW*newH+y*newW:c*newW*newH+(y+1)*newW],
			)
		}
	}

	inputTensor, err := inference.CreateTensor([]int64{1, 3, samInputSize, samInputSize}, padded)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder tensor: %w", err)
	}
	defer inputTensor.Destroy()

	embeddings, err := inference.CreateEmptyTensor[float32]([]int64{1, samEmbeddingDim, samEmbeddingSize, samEmbeddingSize})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding tensor: %w", err)
	}

	if err := s.encoder.Run(
		[]ort.Value{inputTensor},
		[]ort.Value{embeddings},
	); err != nil {
		embeddings.Destroy()
		return nil, fmt.Errorf("segmentation encoding failed: %w", err)
	}
	return embeddings, nil
}

// thresholdMask binarizes decoder logits at zero into an 8UC1 mask.
func thresholdMask(data []float32, width, height int) gocv.Mat {
	bytes := make([]byte, width*height)
	for i, v := range data {
		if i >= len(bytes) {
			break
		}
		if v > 0 {
			bytes[i] = 255
		}
	}
	mask, _ := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, bytes)
	return mask
}

// Close releases both sessions and the scratch tensors.
func (s *SAMSegmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maskInput.Destroy()
	s.hasMaskInput.Destroy()
	if err := s.encoder.Destroy(); err != nil {
		return err
	}
	return s.decoder.Destroy()
}
