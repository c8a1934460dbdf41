package imaging

import (
	"gocv.io/x/gocv"
)

// grayBytes returns the single-channel luminance plane of img as a byte
// slice plus its dimensions.
func grayBytes(img gocv.Mat) ([]byte, int, int) {
	gray := gocv.NewMat()
	defer gray.Close()
	switch img.Channels() {
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	case 3:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	default:
		img.CopyTo(&gray)
	}
	return gray.ToBytes(), gray.Cols(), gray.Rows()
}

// LaplacianVariance measures image sharpness as the variance of the 4-way
// Laplacian response. Higher values mean more high-frequency content.
func LaplacianVariance(img gocv.Mat) float64 {
	data, width, height := grayBytes(img)
	if width < 3 || height < 3 {
		return 0
	}

	var sum, sumSq float64
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			center := int(data[y*width+x])
			val := int(data[(y-1)*width+x]) +
				int(data[(y+1)*width+x]) +
				int(data[y*width+x-1]) +
				int(data[y*width+x+1]) -
				4*center
			fVal := float64(val)
			sum += fVal
			sumSq += fVal * fVal
		}
	}

	n := float64((width - 2) * (height - 2))
	mean := sum / n
	return (sumSq / n) - (mean * mean)
}

// NoiseEstimate measures residual noise as the mean absolute Laplacian
// response. Smoothing an image strictly lowers this number, which is what
// the denoiser's monotonicity contract is checked against.
func NoiseEstimate(img gocv.Mat) float64 {
	data, width, height := grayBytes(img)
	if width < 3 || height < 3 {
		return 0
	}

	var sumAbs float64
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			center := int(data[y*width+x])
			val := int(data[(y-1)*width+x]) +
				int(data[(y+1)*width+x]) +
				int(data[y*width+x-1]) +
				int(data[y*width+x+1]) -
				4*center
			if val < 0 {
				val = -val
			}
			sumAbs += float64(val)
		}
	}

	return sumAbs / float64((width-2)*(height-2))
}

// MeanBrightness returns the average luminance in [0,255].
func MeanBrightness(img gocv.Mat) float64 {
	data, width, height := grayBytes(img)
	if width == 0 || height == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	return sum / float64(len(data))
}
