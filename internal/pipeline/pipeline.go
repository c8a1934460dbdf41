package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/logger"
	"go-image-studio/internal/processor"
	"go-image-studio/internal/registry"
)

// Params selects pipeline stages and their settings. Stage parameters given
// here are authoritative; there is no other way to tune a stage inside a
// pipeline run.
type Params struct {
	RemoveBackground bool    `json:"remove_background"`
	Denoise          bool    `json:"denoise"`
	DenoiseStrength  float32 `json:"denoise_strength"`
	AutoEnhance      bool    `json:"auto_enhance"`
	EnhanceFace      bool    `json:"enhance_face"`
	FaceWeight       float64 `json:"face_weight"`
	Upscale          bool    `json:"upscale"`
	UpscaleFactor    int     `json:"upscale_factor"`
}

// DefaultParams returns the stage defaults used when a field is omitted.
func DefaultParams() Params {
	return Params{
		DenoiseStrength: 10,
		FaceWeight:      0.5,
		UpscaleFactor:   2,
	}
}

// Pipeline chains processors in a fixed order: background removal, denoise,
// auto-enhance, face enhancement, upscale. The order never changes; Params
// only selects which of the stages run.
type Pipeline struct {
	reg *registry.Registry
}

// New creates a pipeline over the registry.
func New(reg *registry.Registry) *Pipeline {
	return &Pipeline{reg: reg}
}

// build turns params into the ordered stage list. Parameter violations
// surface as validation errors before any stage runs.
func (p *Pipeline) build(params Params) ([]processor.Processor, error) {
	stages := make([]processor.Processor, 0, 5)

	if params.RemoveBackground {
		stages = append(stages, processor.NewBackgroundRemover(p.reg))
	}
	if params.Denoise {
		d, err := processor.NewDenoiser(p.reg, params.DenoiseStrength)
		if err != nil {
			return nil, err
		}
		stages = append(stages, d)
	}
	if params.AutoEnhance {
		stages = append(stages, processor.NewAutoEnhancer(p.reg))
	}
	if params.EnhanceFace {
		f, err := processor.NewFaceRestorer(p.reg, 1, params.FaceWeight)
		if err != nil {
			return nil, err
		}
		stages = append(stages, f)
	}
	if params.Upscale {
		u, err := processor.NewUpscaler(p.reg, params.UpscaleFactor)
		if err != nil {
			return nil, err
		}
		stages = append(stages, u)
	}

	return stages, nil
}

// Run executes the selected stages in order and returns the final image
// plus the names of the stages that ran. With every stage disabled the
// pipeline is a pass-through and returns an unmodified copy. A stage
// failure aborts the run and carries the failing stage's identity.
func (p *Pipeline) Run(ctx context.Context, img gocv.Mat, params Params) (gocv.Mat, []string, error) {
	stages, err := p.build(params)
	if err != nil {
		return gocv.Mat{}, nil, err
	}

	applied := make([]string, 0, len(stages))
	current := img.Clone()
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			current.Close()
			return gocv.Mat{}, applied, apperrors.NewStageExecutionError(stage.Name(), err)
		}

		start := time.Now()
		next, err := stage.Process(ctx, current)
		current.Close()
		if err != nil {
			return gocv.Mat{}, applied, apperrors.NewStageExecutionError(stage.Name(), err)
		}

		logger.WithFields(logrus.Fields{
			"stage":    stage.Name(),
			"duration": time.Since(start),
			"width":    next.Cols(),
			"height":   next.Rows(),
		}).Debug("Pipeline stage completed")

		applied = append(applied, stage.Name())
		current = next
	}
	return current, applied, nil
}

// Kinds returns the capabilities the given params would exercise, in stage
// order. Used to report degraded-mode stages without re-running the
// pipeline.
func (p *Pipeline) Kinds(params Params) []registry.Kind {
	stages, err := p.build(params)
	if err != nil {
		return nil
	}
	kinds := make([]registry.Kind, 0, len(stages))
	for _, stage := range stages {
		kinds = append(kinds, stage.Kind())
	}
	return kinds
}
