package weights

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"go-image-studio/internal/logger"
)

// Asset is one downloadable weight file belonging to a model variant.
type Asset struct {
	// File is the filename under the cache directory, also used as the
	// blob name for blob-backed sources.
	File string
	// URL is the canonical public download location.
	URL string
}

// catalog maps model variant names to their weight assets. Variants with
// several files (encoder/decoder pairs) list them in load order.
var catalog = map[string][]Asset{
	"yolov8n": {
		{File: "yolov8n.onnx", URL: "https://huggingface.co/onnx-community/yolov8n/resolve/main/yolov8n.onnx"},
	},
	"yolov8s": {
		{File: "yolov8s.onnx", URL: "https://huggingface.co/onnx-community/yolov8s/resolve/main/yolov8s.onnx"},
	},
	"realesrgan-x4plus": {
		{File: "RealESRGAN_x4plus.onnx", URL: "https://huggingface.co/rocca/real-esrgan-onnx/resolve/main/RealESRGAN_x4plus.onnx"},
	},
	"realesrgan-x2plus": {
		{File: "RealESRGAN_x2plus.onnx", URL: "https://huggingface.co/rocca/real-esrgan-onnx/resolve/main/RealESRGAN_x2plus.onnx"},
	},
	"realesrgan-x4plus-anime": {
		{File: "RealESRGAN_x4plus_anime_6B.onnx", URL: "https://huggingface.co/rocca/real-esrgan-onnx/resolve/main/RealESRGAN_x4plus_anime_6B.onnx"},
	},
	"gfpgan-v1.3": {
		{File: "GFPGANv1.3.onnx", URL: "https://huggingface.co/leonelhs/gfpgan-onnx/resolve/main/GFPGANv1.3.onnx"},
	},
	"gfpgan-v1.4": {
		{File: "GFPGANv1.4.onnx", URL: "https://huggingface.co/leonelhs/gfpgan-onnx/resolve/main/GFPGANv1.4.onnx"},
	},
	"mobile-sam": {
		{File: "mobile_sam_encoder.onnx", URL: "https://huggingface.co/vietanhdev/segment-anything-onnx-models/resolve/main/mobile_sam_encoder.onnx"},
		{File: "mobile_sam_decoder.onnx", URL: "https://huggingface.co/vietanhdev/segment-anything-onnx-models/resolve/main/mobile_sam_decoder.onnx"},
	},
	"sam-vit-b": {
		{File: "sam_vit_b_encoder.onnx", URL: "https://huggingface.co/vietanhdev/segment-anything-onnx-models/resolve/main/sam_vit_b_encoder.onnx"},
		{File: "sam_vit_b_decoder.onnx", URL: "https://huggingface.co/vietanhdev/segment-anything-onnx-models/resolve/main/sam_vit_b_decoder.onnx"},
	},
	"u2net": {
		{File: "u2net.onnx", URL: "https://huggingface.co/tomjackson2023/rembg/resolve/main/u2net.onnx"},
	},
	"u2netp": {
		{File: "u2netp.onnx", URL: "https://huggingface.co/tomjackson2023/rembg/resolve/main/u2netp.onnx"},
	},
}

// Source fetches a single weight asset to a local file.
type Source interface {
	Download(ctx context.Context, asset Asset, dst string) error
}

// Known reports whether the variant exists in the catalog.
func Known(variant string) bool {
	_, ok := catalog[variant]
	return ok
}

// Resolver locates model weights on disk, downloading them through its
// source on a cache miss.
type Resolver struct {
	cacheDir string
	source   Source
}

// NewResolver creates a resolver rooted at cacheDir.
func NewResolver(cacheDir string, source Source) *Resolver {
	return &Resolver{cacheDir: cacheDir, source: source}
}

// Resolve returns local paths for every asset of the variant, in catalog
// order. Cached files are reused; missing ones are downloaded atomically.
func (r *Resolver) Resolve(ctx context.Context, variant string) ([]string, error) {
	assets, ok := catalog[variant]
	if !ok {
		return nil, fmt.Errorf("unknown model variant %q", variant)
	}

	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create weights cache dir: %w", err)
	}

	paths := make([]string, 0, len(assets))
	for _, asset := range assets {
		path := filepath.Join(r.cacheDir, asset.File)
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
			continue
		}

		logger.WithFields(logrus.Fields{
			"variant": variant,
			"file":    asset.File,
		}).Info("Downloading model weights")

		// Download to a temp name and rename so a crashed download never
		// leaves a truncated file that looks cached.
		tmp := path + ".part"
		if err := r.source.Download(ctx, asset, tmp); err != nil {
			os.Remove(tmp)
			return nil, fmt.Errorf("failed to download weights for %s: %w", variant, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return nil, fmt.Errorf("failed to finalize weights for %s: %w", variant, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
