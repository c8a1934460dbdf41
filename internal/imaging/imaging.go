package imaging

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Decode turns raw image bytes into a Mat, preserving an alpha channel when
// the source has one. Grayscale sources are promoted to 3 channels so every
// downstream consumer sees BGR or BGRA.
func Decode(data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return gocv.Mat{}, errors.New("failed to decode image")
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, errors.New("decoded image is empty or unsupported format")
	}
	if mat.Channels() == 1 {
		converted := gocv.NewMat()
		gocv.CvtColor(mat, &converted, gocv.ColorGrayToBGR)
		mat.Close()
		return converted, nil
	}
	return mat, nil
}

// EncodePNG serializes a Mat to PNG bytes.
func EncodePNG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// EnsureBGR returns a 3-channel view of img. The caller owns the returned
// Mat; it is always a new allocation, never an alias of the input.
func EnsureBGR(img gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	switch img.Channels() {
	case 4:
		gocv.CvtColor(img, &out, gocv.ColorBGRAToBGR)
	default:
		img.CopyTo(&out)
	}
	return out
}

// EnsureBGRA returns a 4-channel view of img as a new allocation.
func EnsureBGRA(img gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	switch img.Channels() {
	case 3:
		gocv.CvtColor(img, &out, gocv.ColorBGRToBGRA)
	default:
		img.CopyTo(&out)
	}
	return out
}

// WithinMaxDimension reports whether both image sides fit the limit.
func WithinMaxDimension(img gocv.Mat, maxDim int) bool {
	return img.Cols() <= maxDim && img.Rows() <= maxDim
}

// FeatherAlpha softens cutout edges by blurring the alpha channel of a BGRA
// image in place. Radius is in pixels; zero is a no-op.
func FeatherAlpha(img *gocv.Mat, radius int) {
	if radius <= 0 || img.Channels() != 4 {
		return
	}
	channels := gocv.Split(*img)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(channels[3], &blurred, image.Pt(0, 0), float64(radius), float64(radius), gocv.BorderDefault)
	blurred.CopyTo(&channels[3])
	gocv.Merge(channels, img)
}

// FitMode controls how ResizeToBox places the subject inside the target box.
type FitMode string

const (
	FitContain FitMode = "contain"
	FitCover   FitMode = "cover"
)

// ResizeToBox resizes a BGRA image onto a transparent canvas of the given
// size. Contain keeps the whole subject, cover fills the box and crops the
// overflow. A non-positive target dimension returns a plain copy.
func ResizeToBox(img gocv.Mat, targetW, targetH int, mode FitMode) gocv.Mat {
	if targetW <= 0 || targetH <= 0 {
		return img.Clone()
	}

	srcW := img.Cols()
	srcH := img.Rows()
	var scale float64
	if mode == FitCover {
		scale = maxFloat(float64(targetW)/float64(srcW), float64(targetH)/float64(srcH))
	} else {
		scale = minFloat(float64(targetW)/float64(srcW), float64(targetH)/float64(srcH))
	}

	newW := maxInt(1, int(float64(srcW)*scale+0.5))
	newH := maxInt(1, int(float64(srcH)*scale+0.5))

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationLanczos4)

	canvas := gocv.NewMatWithSize(targetH, targetW, gocv.MatTypeCV8UC4)

	// Crop the overflow in cover mode, center in both modes.
	cropX, cropY := 0, 0
	placeW, placeH := newW, newH
	if newW > targetW {
		cropX = (newW - targetW) / 2
		placeW = targetW
	}
	if newH > targetH {
		cropY = (newH - targetH) / 2
		placeH = targetH
	}

	src := resized.Region(image.Rect(cropX, cropY, cropX+placeW, cropY+placeH))
	defer src.Close()

	offX := (targetW - placeW) / 2
	offY := (targetH - placeH) / 2
	dst := canvas.Region(image.Rect(offX, offY, offX+placeW, offY+placeH))
	src.CopyTo(&dst)
	dst.Close()

	return canvas
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
