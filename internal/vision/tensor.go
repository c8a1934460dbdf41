package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// chwFloat converts a BGR Mat to planar CHW float32 data of the given size.
// Channels are emitted in RGB order and scaled to [0,1]. When mean and std
// are non-nil they are applied per channel after scaling by 255 is skipped,
// i.e. (pixel - mean) / std on the raw 0-255 range.
func chwFloat(img gocv.Mat, size image.Point, mean, std *[3]float32) []float32 {
	resized := gocv.NewMat()
	defer resized.Close()
	if img.Cols() != size.X || img.Rows() != size.Y {
		gocv.Resize(img, &resized, size, 0, 0, gocv.InterpolationLinear)
	} else {
		img.CopyTo(&resized)
	}

	width := size.X
	height := size.Y
	data := resized.ToBytes()
	channels := resized.Channels()
	plane := width * height

	out := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := (y*width + x) * channels
			b := float32(data[idx])
			g := float32(data[idx+1])
			r := float32(data[idx+2])
			pos := y*width + x
			if mean != nil && std != nil {
				out[pos] = (r - mean[0]) / std[0]
				out[plane+pos] = (g - mean[1]) / std[1]
				out[2*plane+pos] = (b - mean[2]) / std[2]
			} else {
				out[pos] = r / 255.0
				out[plane+pos] = g / 255.0
				out[2*plane+pos] = b / 255.0
			}
		}
	}
	return out
}

// chwToMat converts planar CHW float32 data in RGB order back to a BGR Mat.
// Values are expected in [0,1] and are clamped before quantization.
func chwToMat(data []float32, width, height int) gocv.Mat {
	plane := width * height
	bytes := make([]byte, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := y*width + x
			idx := pos * 3
			bytes[idx] = clampByte(data[2*plane+pos] * 255.0)
			bytes[idx+1] = clampByte(data[plane+pos] * 255.0)
			bytes[idx+2] = clampByte(data[pos] * 255.0)
		}
	}
	mat, _ := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, bytes)
	return mat
}

func clampByte(v float32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

// letterbox describes how an image was fitted into a square model input.
type letterbox struct {
	scale float32
	padX  float32
	padY  float32
}

// letterboxFit computes the scale and padding that center src inside a
// target square while keeping aspect ratio.
func letterboxFit(srcW, srcH, target int) letterbox {
	scale := minF(float32(target)/float32(srcW), float32(target)/float32(srcH))
	newW := float32(srcW) * scale
	newH := float32(srcH) * scale
	return letterbox{
		scale: scale,
		padX:  (float32(target) - newW) / 2,
		padY:  (float32(target) - newH) / 2,
	}
}

// letterboxImage resizes src into a target square with gray padding and
// returns the new Mat plus the applied transform.
func letterboxImage(src gocv.Mat, target int) (gocv.Mat, letterbox) {
	lb := letterboxFit(src.Cols(), src.Rows(), target)
	newW := int(float32(src.Cols())*lb.scale + 0.5)
	newH := int(float32(src.Rows())*lb.scale + 0.5)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationLinear)

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(114, 114, 114, 0), target, target, gocv.MatTypeCV8UC3)
	roi := canvas.Region(image.Rect(int(lb.padX), int(lb.padY), int(lb.padX)+newW, int(lb.padY)+newH))
	resized.CopyTo(&roi)
	roi.Close()

	return canvas, lb
}
