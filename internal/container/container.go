package container

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go-image-studio/internal/config"
	"go-image-studio/internal/device"
	"go-image-studio/internal/inference"
	"go-image-studio/internal/logger"
	"go-image-studio/internal/monitor"
	"go-image-studio/internal/pipeline"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/service"
	"go-image-studio/internal/transport"
	"go-image-studio/internal/vision"
	"go-image-studio/internal/weights"
)

// Container holds all application dependencies
type Container struct {
	config   *config.Config
	device   device.Info
	registry *registry.Registry
	monitor  *monitor.Monitor
	service  *service.ProcessingService
	handler  http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer() (*Container, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dev := device.Resolve(cfg.OnnxLibraryPath, cfg.ForceCPU())

	// The runtime may be absent entirely; model loads will then fail into
	// their fallbacks or report the capability unavailable.
	if !cfg.ForceCPU() {
		if err := inference.EnsureEnvironment(cfg.OnnxLibraryPath); err != nil {
			logger.WithError(err).Warn("ONNX Runtime initialization failed, learned models will be unavailable")
		}
	}

	var mon *monitor.Monitor
	reg := registry.New(registry.NewLoggingObserver())
	if cfg.MetricsEnabled {
		mon = monitor.New()
		reg.Subscribe(mon)
	}

	source, err := weightSource(cfg)
	if err != nil {
		return nil, err
	}
	resolver := weights.NewResolver(cfg.WeightsCacheDir, source)

	accelerated := dev.Kind == device.KindAccelerated
	if err := registerLoaders(reg, cfg, resolver, accelerated); err != nil {
		return nil, err
	}

	pipe := pipeline.New(reg)
	svc := service.NewProcessingService(cfg, reg, pipe)
	handler := transport.NewHandler(svc, cfg, mon)

	return &Container{
		config:   cfg,
		device:   dev,
		registry: reg,
		monitor:  mon,
		service:  svc,
		handler:  handler,
	}, nil
}

// weightSource picks where model weights come from.
func weightSource(cfg *config.Config) (weights.Source, error) {
	if cfg.WeightSource == "azure" {
		source, err := weights.NewAzureSource(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.AzureContainer)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure weight source: %w", err)
		}
		return source, nil
	}
	return weights.NewHTTPSource(), nil
}

// registerLoaders declares every capability. Learned capabilities resolve
// weights lazily inside their loader; classical ones construct immediately
// and can never fail.
func registerLoaders(reg *registry.Registry, cfg *config.Config, resolver *weights.Resolver, accelerated bool) error {
	specs := []registry.Spec{
		{
			Kind:    registry.KindDetection,
			Variant: cfg.DetectionVariant,
			Primary: func(ctx context.Context) (any, error) {
				paths, err := resolver.Resolve(ctx, cfg.DetectionVariant)
				if err != nil {
					return nil, err
				}
				return vision.NewYOLODetector(paths[0], accelerated)
			},
		},
		{
			Kind:    registry.KindUpscale,
			Variant: cfg.UpscaleVariant,
			Primary: func(ctx context.Context) (any, error) {
				paths, err := resolver.Resolve(ctx, cfg.UpscaleVariant)
				if err != nil {
					return nil, err
				}
				return vision.NewESRGANUpscaler(paths[0], upscaleNativeScale(cfg.UpscaleVariant), accelerated)
			},
			Fallback: func(ctx context.Context) (any, error) {
				return vision.NewInterpolationUpscaler(), nil
			},
		},
		{
			Kind:    registry.KindFaceRestore,
			Variant: cfg.FaceRestoreVariant,
			Primary: func(ctx context.Context) (any, error) {
				paths, err := resolver.Resolve(ctx, cfg.FaceRestoreVariant)
				if err != nil {
					return nil, err
				}
				return vision.NewGFPGANRestorer(paths[0], accelerated)
			},
			Fallback: func(ctx context.Context) (any, error) {
				return vision.NewClassicalRestorer(), nil
			},
		},
		{
			Kind:    registry.KindSegmentation,
			Variant: cfg.SegmentationVariant,
			Primary: func(ctx context.Context) (any, error) {
				paths, err := resolver.Resolve(ctx, cfg.SegmentationVariant)
				if err != nil {
					return nil, err
				}
				return vision.NewSAMSegmenter(paths[0], paths[1], accelerated)
			},
		},
		{
			Kind:    registry.KindBackgroundRemoval,
			Variant: cfg.MattingVariant,
			Primary: func(ctx context.Context) (any, error) {
				paths, err := resolver.Resolve(ctx, cfg.MattingVariant)
				if err != nil {
					return nil, err
				}
				return vision.NewU2NetMatting(paths[0], accelerated)
			},
		},
		{
			Kind:    registry.KindDenoise,
			Variant: "nl-means",
			Primary: func(ctx context.Context) (any, error) {
				return vision.NewNLMeansDenoiser(), nil
			},
		},
		{
			Kind:    registry.KindAutoEnhance,
			Variant: "clahe",
			Primary: func(ctx context.Context) (any, error) {
				return vision.NewCLAHEEnhancer(), nil
			},
		},
		{
			Kind:    registry.KindSharpen,
			Variant: "unsharp-mask",
			Primary: func(ctx context.Context) (any, error) {
				return vision.NewUnsharpSharpener(), nil
			},
		},
		{
			Kind:    registry.KindObjectRemoval,
			Variant: "telea",
			Primary: func(ctx context.Context) (any, error) {
				return vision.NewTeleaInpainter(3), nil
			},
		},
	}

	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// upscaleNativeScale maps a variant name onto the network's built-in scale.
func upscaleNativeScale(variant string) int {
	if strings.Contains(variant, "x2") {
		return 2
	}
	return 4
}

// Preload warms the configured capabilities.
func (c *Container) Preload(ctx context.Context) {
	kinds := make([]registry.Kind, 0, len(c.config.Preload))
	for _, name := range c.config.Preload {
		kinds = append(kinds, registry.Kind(name))
	}
	c.registry.Preload(ctx, kinds, 2)
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Monitor returns the metrics monitor, nil when metrics are disabled.
func (c *Container) Monitor() *monitor.Monitor {
	return c.monitor
}

// Close releases process-wide resources at shutdown.
func (c *Container) Close() error {
	return inference.Shutdown()
}
