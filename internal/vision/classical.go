package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// AutoEnhance applies adaptive histogram equalization on the lightness
// channel followed by gray-world white balance. Deterministic: the same
// input always yields the same output.
func AutoEnhance(img gocv.Mat) gocv.Mat {
	bgr := gocv.NewMat()
	switch img.Channels() {
	case 4:
		gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)
	default:
		img.CopyTo(&bgr)
	}
	defer bgr.Close()

	// CLAHE on the L channel in LAB space.
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(bgr, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8))
	defer clahe.Close()
	equalized := gocv.NewMat()
	clahe.Apply(channels[0], &equalized)
	equalized.CopyTo(&channels[0])
	equalized.Close()
	gocv.Merge(channels, &lab)
	for i := range channels {
		channels[i].Close()
	}

	enhanced := gocv.NewMat()
	defer enhanced.Close()
	gocv.CvtColor(lab, &enhanced, gocv.ColorLabToBGR)

	out := grayWorldBalance(enhanced)

	// Preserve the alpha plane of BGRA inputs.
	if img.Channels() == 4 {
		srcChannels := gocv.Split(img)
		outChannels := gocv.Split(out)
		merged := gocv.NewMat()
		gocv.Merge([]gocv.Mat{outChannels[0], outChannels[1], outChannels[2], srcChannels[3]}, &merged)
		for i := range srcChannels {
			srcChannels[i].Close()
		}
		for i := range outChannels {
			outChannels[i].Close()
		}
		out.Close()
		return merged
	}
	return out
}

// grayWorldBalance scales each color channel so their means agree.
func grayWorldBalance(bgr gocv.Mat) gocv.Mat {
	channels := gocv.Split(bgr)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()

	means := make([]float64, 3)
	var grayMean float64
	for i := 0; i < 3; i++ {
		means[i] = channels[i].Mean().Val1
		grayMean += means[i]
	}
	grayMean /= 3

	for i := 0; i < 3; i++ {
		if means[i] > 0 {
			channels[i].MultiplyFloat(float32(grayMean / means[i]))
		}
	}

	out := gocv.NewMat()
	gocv.Merge(channels, &out)
	return out
}

// InterpolationUpscaler is the degraded-mode upscaler: plain bicubic
// resampling with no learned detail synthesis.
type InterpolationUpscaler struct{}

// NewInterpolationUpscaler creates the fallback upscaler.
func NewInterpolationUpscaler() *InterpolationUpscaler {
	return &InterpolationUpscaler{}
}

// Upscale enlarges img by exactly factor using bicubic interpolation.
func (u *InterpolationUpscaler) Upscale(img gocv.Mat, factor int) (gocv.Mat, error) {
	if factor < 1 {
		return gocv.Mat{}, fmt.Errorf("invalid upscale factor %d", factor)
	}
	out := gocv.NewMat()
	gocv.Resize(img, &out, image.Pt(img.Cols()*factor, img.Rows()*factor), 0, 0, gocv.InterpolationCubic)
	return out, nil
}

// ClassicalRestorer is the degraded-mode face restorer: contrast
// enhancement plus mild sharpening stands in for learned restoration.
type ClassicalRestorer struct{}

// NewClassicalRestorer creates the fallback face restorer.
func NewClassicalRestorer() *ClassicalRestorer {
	return &ClassicalRestorer{}
}

// Restore enhances the image without a learned model. Output dimensions
// match the input.
func (r *ClassicalRestorer) Restore(img gocv.Mat) (gocv.Mat, error) {
	enhanced := AutoEnhance(img)
	defer enhanced.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(enhanced, &blurred, image.Pt(0, 0), 2.0, 2.0, gocv.BorderDefault)

	out := gocv.NewMat()
	gocv.AddWeighted(enhanced, 1.5, blurred, -0.5, 0, &out)
	return out, nil
}

// NLMeansDenoiser removes noise with non-local means filtering.
type NLMeansDenoiser struct{}

// NewNLMeansDenoiser creates the denoising backend.
func NewNLMeansDenoiser() *NLMeansDenoiser {
	return &NLMeansDenoiser{}
}

// Denoise filters a BGR image. Strength maps directly onto the filter h
// parameter for both luminance and color.
func (d *NLMeansDenoiser) Denoise(img gocv.Mat, strength float32) (gocv.Mat, error) {
	out := gocv.NewMat()
	gocv.FastNlMeansDenoisingColoredWithParams(img, &out, strength, strength, 7, 21)
	return out, nil
}

// UnsharpSharpener sharpens through unsharp masking.
type UnsharpSharpener struct{}

// NewUnsharpSharpener creates the sharpening backend.
func NewUnsharpSharpener() *UnsharpSharpener {
	return &UnsharpSharpener{}
}

// Sharpen blends the image against its Gaussian blur. Amount controls the
// blend: out = img*(1+amount) - blurred*amount.
func (s *UnsharpSharpener) Sharpen(img gocv.Mat, amount float64) (gocv.Mat, error) {
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(img, &blurred, image.Pt(0, 0), 2.0, 2.0, gocv.BorderDefault)

	out := gocv.NewMat()
	gocv.AddWeighted(img, 1+amount, blurred, -amount, 0, &out)
	return out, nil
}

// CLAHEEnhancer is the auto-enhancement backend.
type CLAHEEnhancer struct{}

// NewCLAHEEnhancer creates the enhancement backend.
func NewCLAHEEnhancer() *CLAHEEnhancer {
	return &CLAHEEnhancer{}
}

// Enhance applies AutoEnhance.
func (e *CLAHEEnhancer) Enhance(img gocv.Mat) (gocv.Mat, error) {
	return AutoEnhance(img), nil
}

// TeleaInpainter fills masked regions with the Telea diffusion method.
type TeleaInpainter struct {
	radius float32
}

// NewTeleaInpainter creates an inpainter with the given diffusion radius.
func NewTeleaInpainter(radius float32) *TeleaInpainter {
	if radius <= 0 {
		radius = 3
	}
	return &TeleaInpainter{radius: radius}
}

// Inpaint fills the non-zero region of mask with surrounding content.
func (t *TeleaInpainter) Inpaint(img gocv.Mat, mask gocv.Mat) (gocv.Mat, error) {
	bgr := gocv.NewMat()
	switch img.Channels() {
	case 4:
		gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)
	default:
		img.CopyTo(&bgr)
	}
	defer bgr.Close()

	out := gocv.NewMat()
	gocv.Inpaint(bgr, mask, &out, t.radius, gocv.Telea)
	return out, nil
}
