package service

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"go-image-studio/internal/config"
	"go-image-studio/internal/device"
	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/imaging"
	"go-image-studio/internal/pipeline"
	"go-image-studio/internal/processor"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/vision"
	"go-image-studio/pkg/models"
)

// Result is a processed image plus execution metadata.
type Result struct {
	// PNG holds the encoded output image.
	PNG []byte
	// DegradedKinds lists capabilities that served this request through
	// their fallback backend.
	DegradedKinds []registry.Kind
	// AppliedStages lists pipeline stages that ran, in order. Empty for
	// single-processor operations.
	AppliedStages []string
}

// DetectionOutcome is the result of a detection request: structured
// detections, and the annotated image when visualization was asked for.
type DetectionOutcome struct {
	Response      models.DetectionResponse
	AnnotatedPNG  []byte
	DegradedKinds []registry.Kind
}

// ProcessingService is the facade every endpoint goes through. It owns
// decode, size guarding, processor dispatch and encode.
type ProcessingService struct {
	cfg  *config.Config
	reg  *registry.Registry
	pipe *pipeline.Pipeline
}

// NewProcessingService creates the service.
func NewProcessingService(cfg *config.Config, reg *registry.Registry, pipe *pipeline.Pipeline) *ProcessingService {
	return &ProcessingService{cfg: cfg, reg: reg, pipe: pipe}
}

// decode validates and decodes request bytes into a working Mat.
func (s *ProcessingService) decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, apperrors.NewValidationError("image payload is empty", nil)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return gocv.Mat{}, apperrors.NewValidationError("unsupported or corrupt image", err)
	}
	if !imaging.WithinMaxDimension(img, s.cfg.MaxImageDimension) {
		defer img.Close()
		return gocv.Mat{}, apperrors.NewValidationError(
			fmt.Sprintf("image exceeds the maximum dimension of %d pixels", s.cfg.MaxImageDimension), nil)
	}
	return img, nil
}

// degraded reports which of the given kinds are currently served by their
// fallback backend.
func (s *ProcessingService) degraded(kinds []registry.Kind) []registry.Kind {
	if len(kinds) == 0 {
		return nil
	}
	wanted := make(map[registry.Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}
	var out []registry.Kind
	for _, status := range s.reg.Snapshot() {
		if wanted[status.Kind] && status.Loaded && status.Degraded {
			out = append(out, status.Kind)
		}
	}
	return out
}

// run executes a single processor over the request image.
func (s *ProcessingService) run(ctx context.Context, data []byte, proc processor.Processor) (*Result, error) {
	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	out, err := proc.Process(ctx, img)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	png, err := imaging.EncodePNG(out)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode result", err)
	}
	return &Result{PNG: png, DegradedKinds: s.degraded([]registry.Kind{proc.Kind()})}, nil
}

// Upscale enlarges the image by scale (2 or 4).
func (s *ProcessingService) Upscale(ctx context.Context, data []byte, scale int) (*Result, error) {
	proc, err := processor.NewUpscaler(s.reg, scale)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, data, proc)
}

// EnhanceFace restores facial detail with the given blend weight and
// optional output magnification.
func (s *ProcessingService) EnhanceFace(ctx context.Context, data []byte, upscale int, weight float64) (*Result, error) {
	proc, err := processor.NewFaceRestorer(s.reg, upscale, weight)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, data, proc)
}

// Denoise filters noise at the given strength.
func (s *ProcessingService) Denoise(ctx context.Context, data []byte, strength float32) (*Result, error) {
	proc, err := processor.NewDenoiser(s.reg, strength)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, data, proc)
}

// AutoEnhance applies parameter-free contrast and color correction.
func (s *ProcessingService) AutoEnhance(ctx context.Context, data []byte) (*Result, error) {
	return s.run(ctx, data, processor.NewAutoEnhancer(s.reg))
}

// Sharpen applies unsharp masking at the given amount.
func (s *ProcessingService) Sharpen(ctx context.Context, data []byte, amount float64) (*Result, error) {
	proc, err := processor.NewSharpener(s.reg, amount)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, data, proc)
}

// Detect locates objects. With visualize set the outcome also carries the
// annotated image.
func (s *ProcessingService) Detect(ctx context.Context, data []byte, threshold float32, classes []string, visualize bool) (*DetectionOutcome, error) {
	detector, err := processor.NewDetector(s.reg, threshold, classes)
	if err != nil {
		return nil, err
	}

	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	dets, err := detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	outcome := &DetectionOutcome{
		Response:      s.detectionResponse(dets),
		DegradedKinds: s.degraded([]registry.Kind{registry.KindDetection}),
	}
	outcome.Response.Degraded = len(outcome.DegradedKinds) > 0

	if visualize {
		annotated := detector.Visualize(img, dets)
		defer annotated.Close()
		png, err := imaging.EncodePNG(annotated)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to encode annotated image", err)
		}
		outcome.AnnotatedPNG = png
	}
	return outcome, nil
}

// DetectPeople is detection restricted to the person class.
func (s *ProcessingService) DetectPeople(ctx context.Context, data []byte, threshold float32, visualize bool) (*DetectionOutcome, error) {
	return s.Detect(ctx, data, threshold, []string{"person"}, visualize)
}

func (s *ProcessingService) detectionResponse(dets []vision.Detection) models.DetectionResponse {
	resp := models.DetectionResponse{
		Detections: make([]models.Detection, 0, len(dets)),
		Count:      len(dets),
		Model:      s.cfg.DetectionVariant,
	}
	for _, d := range dets {
		resp.Detections = append(resp.Detections, models.Detection{
			BBox:       [4]float32{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
			Class:      d.Label,
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
		})
	}
	return resp
}

// SegmentObject cuts out the most confident instance of className.
func (s *ProcessingService) SegmentObject(ctx context.Context, data []byte, className string, expandRatio float64) (*Result, error) {
	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	out, err := processor.NewSegmenter(s.reg).SegmentObject(ctx, img, className, expandRatio)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	png, err := imaging.EncodePNG(out)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode result", err)
	}
	return &Result{
		PNG:           png,
		DegradedKinds: s.degraded([]registry.Kind{registry.KindDetection, registry.KindSegmentation}),
	}, nil
}

// SegmentByPoints cuts out the object indicated by click prompts.
func (s *ProcessingService) SegmentByPoints(ctx context.Context, data []byte, points []vision.Point, labels []int) (*Result, error) {
	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	out, err := processor.NewSegmenter(s.reg).SegmentByPoints(ctx, img, points, labels)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	png, err := imaging.EncodePNG(out)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode result", err)
	}
	return &Result{
		PNG:           png,
		DegradedKinds: s.degraded([]registry.Kind{registry.KindSegmentation}),
	}, nil
}

// RemoveObjects erases every instance of the given classes.
func (s *ProcessingService) RemoveObjects(ctx context.Context, data []byte, classes []string, threshold float32) (*Result, error) {
	remover, err := processor.NewObjectRemover(s.reg, classes, threshold)
	if err != nil {
		return nil, err
	}

	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	out, err := remover.Remove(ctx, img)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	png, err := imaging.EncodePNG(out)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode result", err)
	}
	return &Result{
		PNG:           png,
		DegradedKinds: s.degraded([]registry.Kind{registry.KindDetection, registry.KindObjectRemoval}),
	}, nil
}

// ProcessAll runs the fixed-order pipeline with the given stage selection.
func (s *ProcessingService) ProcessAll(ctx context.Context, data []byte, params pipeline.Params) (*Result, error) {
	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	out, applied, err := s.pipe.Run(ctx, img, params)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	png, err := imaging.EncodePNG(out)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode result", err)
	}
	return &Result{
		PNG:           png,
		DegradedKinds: s.degraded(s.pipe.Kinds(params)),
		AppliedStages: applied,
	}, nil
}

// CutoutParams tunes the background removal cutout.
type CutoutParams struct {
	// FeatherRadius softens the cutout edge, in pixels.
	FeatherRadius int
	// TargetWidth and TargetHeight, when both positive, place the cutout
	// onto a transparent canvas of that size.
	TargetWidth  int
	TargetHeight int
	// Fit selects contain or cover placement.
	Fit imaging.FitMode
}

// Cutout removes the background and post-processes the cutout.
func (s *ProcessingService) Cutout(ctx context.Context, data []byte, params CutoutParams) (*Result, error) {
	if params.FeatherRadius < 0 || params.FeatherRadius > 50 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("feather radius must be between 0 and 50, got %d", params.FeatherRadius), nil)
	}
	if params.Fit != "" && params.Fit != imaging.FitContain && params.Fit != imaging.FitCover {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("fit must be %q or %q, got %q", imaging.FitContain, imaging.FitCover, params.Fit), nil)
	}

	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	cut, err := processor.NewBackgroundRemover(s.reg).Process(ctx, img)
	if err != nil {
		return nil, err
	}
	defer cut.Close()

	imaging.FeatherAlpha(&cut, params.FeatherRadius)

	final := cut
	if params.TargetWidth > 0 && params.TargetHeight > 0 {
		mode := params.Fit
		if mode == "" {
			mode = imaging.FitContain
		}
		resized := imaging.ResizeToBox(cut, params.TargetWidth, params.TargetHeight, mode)
		defer resized.Close()
		final = resized
	}

	png, err := imaging.EncodePNG(final)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode result", err)
	}
	return &Result{
		PNG:           png,
		DegradedKinds: s.degraded([]registry.Kind{registry.KindBackgroundRemoval}),
	}, nil
}

// ModelsInfo reports the resolved device and the state of every
// capability without triggering model loads.
func (s *ProcessingService) ModelsInfo() models.ModelsInfoResponse {
	dev := device.Snapshot()
	info := models.ModelsInfoResponse{
		Device: models.DeviceInfo{
			Kind:            string(dev.Kind),
			Name:            dev.Name,
			TotalMemory:     dev.TotalMemory,
			AllocatedMemory: dev.AllocatedMemory,
		},
	}
	for _, status := range s.reg.Snapshot() {
		info.Models = append(info.Models, models.ModelStatus{
			Kind:     string(status.Kind),
			Variant:  status.Variant,
			Loaded:   status.Loaded,
			Degraded: status.Degraded,
			Error:    status.Error,
		})
	}
	return info
}
