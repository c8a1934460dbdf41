package processor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/imaging"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/vision"
)

func newTestRegistry(t *testing.T, backends map[registry.Kind]any) *registry.Registry {
	t.Helper()
	r := registry.New()
	for kind, backend := range backends {
		backend := backend
		require.NoError(t, r.Register(registry.Spec{
			Kind:    kind,
			Primary: func(ctx context.Context) (any, error) { return backend, nil },
		}))
	}
	return r
}

// noisyImage builds a deterministic gray image with uniform noise.
func noisyImage(t *testing.T, width, height int) gocv.Mat {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	data := make([]byte, width*height*3)
	for i := range data {
		data[i] = byte(128 + rng.Intn(64) - 32)
	}
	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, data)
	require.NoError(t, err)
	return mat
}

func solidImage(t *testing.T, width, height int, c color.RGBA) gocv.Mat {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), float64(c.A)),
		height, width, gocv.MatTypeCV8UC3)
	return mat
}

func TestNewUpscalerRejectsUnsupportedScale(t *testing.T) {
	r := registry.New()
	for _, scale := range []int{0, 1, 3, 5, 8} {
		_, err := NewUpscaler(r, scale)
		assert.Error(t, err, "scale %d", scale)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	}
}

func TestUpscalerExactOutputDimensions(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindUpscale: vision.NewInterpolationUpscaler(),
	})

	img := noisyImage(t, 33, 21)
	defer img.Close()

	for _, scale := range []int{2, 4} {
		up, err := NewUpscaler(r, scale)
		require.NoError(t, err)

		out, err := up.Process(context.Background(), img)
		require.NoError(t, err)
		assert.Equal(t, 33*scale, out.Cols())
		assert.Equal(t, 21*scale, out.Rows())
		out.Close()
	}
}

func TestUpscalerDoesNotMutateInput(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindUpscale: vision.NewInterpolationUpscaler(),
	})

	img := noisyImage(t, 16, 16)
	defer img.Close()
	before := img.Clone()
	defer before.Close()

	up, err := NewUpscaler(r, 2)
	require.NoError(t, err)
	out, err := up.Process(context.Background(), img)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, before.ToBytes(), img.ToBytes())
}

func TestUpscalerPreservesAlpha(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindUpscale: vision.NewInterpolationUpscaler(),
	})

	bgr := noisyImage(t, 10, 10)
	defer bgr.Close()
	img := imaging.EnsureBGRA(bgr)
	defer img.Close()

	up, err := NewUpscaler(r, 2)
	require.NoError(t, err)
	out, err := up.Process(context.Background(), img)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 4, out.Channels())
	assert.Equal(t, 20, out.Cols())
}

type fakeRestorer struct {
	out color.RGBA
}

func (f *fakeRestorer) Restore(img gocv.Mat) (gocv.Mat, error) {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(f.out.B), float64(f.out.G), float64(f.out.R), 0),
		img.Rows(), img.Cols(), gocv.MatTypeCV8UC3), nil
}

func TestNewFaceRestorerValidation(t *testing.T) {
	r := registry.New()

	_, err := NewFaceRestorer(r, 0, 0.5)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = NewFaceRestorer(r, 5, 0.5)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = NewFaceRestorer(r, 2, -0.1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = NewFaceRestorer(r, 2, 1.1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestFaceRestorerWeightZeroKeepsOriginal(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindFaceRestore: &fakeRestorer{out: color.RGBA{R: 255}},
	})

	img := solidImage(t, 8, 8, color.RGBA{B: 255})
	defer img.Close()

	f, err := NewFaceRestorer(r, 1, 0)
	require.NoError(t, err)
	out, err := f.Process(context.Background(), img)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, img.ToBytes(), out.ToBytes())
}

func TestFaceRestorerUpscalesOutput(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindFaceRestore: &fakeRestorer{out: color.RGBA{R: 200}},
	})

	img := solidImage(t, 12, 9, color.RGBA{G: 80})
	defer img.Close()

	f, err := NewFaceRestorer(r, 2, 0.5)
	require.NoError(t, err)
	out, err := f.Process(context.Background(), img)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 24, out.Cols())
	assert.Equal(t, 18, out.Rows())
}

func TestNewDenoiserValidation(t *testing.T) {
	r := registry.New()
	for _, strength := range []float32{0, 2.9, 20.1, 100} {
		_, err := NewDenoiser(r, strength)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), "strength %g", strength)
	}
	_, err := NewDenoiser(r, 10)
	assert.NoError(t, err)
}

func TestDenoiserReducesNoise(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDenoise: vision.NewNLMeansDenoiser(),
	})

	img := noisyImage(t, 64, 64)
	defer img.Close()
	before := imaging.NoiseEstimate(img)

	d, err := NewDenoiser(r, 10)
	require.NoError(t, err)
	out, err := d.Process(context.Background(), img)
	require.NoError(t, err)
	defer out.Close()

	assert.Less(t, imaging.NoiseEstimate(out), before)
}

func TestDenoiserStrengthMonotonic(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDenoise: vision.NewNLMeansDenoiser(),
	})

	img := noisyImage(t, 64, 64)
	defer img.Close()

	var previous = imaging.NoiseEstimate(img)
	for _, strength := range []float32{3, 10, 20} {
		d, err := NewDenoiser(r, strength)
		require.NoError(t, err)
		out, err := d.Process(context.Background(), img)
		require.NoError(t, err)

		residual := imaging.NoiseEstimate(out)
		assert.LessOrEqual(t, residual, previous, "strength %g must not add noise back", strength)
		previous = residual
		out.Close()
	}
}

func TestDenoiserKeepsAlphaUntouched(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDenoise: vision.NewNLMeansDenoiser(),
	})

	bgr := noisyImage(t, 32, 32)
	defer bgr.Close()
	img := imaging.EnsureBGRA(bgr)
	defer img.Close()

	d, err := NewDenoiser(r, 10)
	require.NoError(t, err)
	out, err := d.Process(context.Background(), img)
	require.NoError(t, err)
	defer out.Close()

	require.Equal(t, 4, out.Channels())
	inChannels := gocv.Split(img)
	outChannels := gocv.Split(out)
	defer func() {
		for i := range inChannels {
			inChannels[i].Close()
			outChannels[i].Close()
		}
	}()
	assert.Equal(t, inChannels[3].ToBytes(), outChannels[3].ToBytes())
}

func TestNewSharpenerValidation(t *testing.T) {
	r := registry.New()
	for _, amount := range []float64{0, 0.4, 3.1, -1} {
		_, err := NewSharpener(r, amount)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), "amount %g", amount)
	}
	_, err := NewSharpener(r, 1.0)
	assert.NoError(t, err)
}

func TestSharpenerIncreasesSharpness(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindSharpen: vision.NewUnsharpSharpener(),
	})

	// A smooth gradient with a soft edge gains contrast under unsharp
	// masking.
	img := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	half := img.Region(image.Rect(0, 0, 32, 64))
	half.SetTo(gocv.NewScalar(200, 200, 200, 0))
	half.Close()
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(img, &blurred, image.Pt(0, 0), 3, 3, gocv.BorderDefault)

	before := imaging.LaplacianVariance(blurred)

	s, err := NewSharpener(r, 1.5)
	require.NoError(t, err)
	out, err := s.Process(context.Background(), blurred)
	require.NoError(t, err)
	defer out.Close()

	assert.Greater(t, imaging.LaplacianVariance(out), before)
}

func TestAutoEnhancerDeterministic(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindAutoEnhance: vision.NewCLAHEEnhancer(),
	})

	img := noisyImage(t, 48, 48)
	defer img.Close()

	a := NewAutoEnhancer(r)
	first, err := a.Process(context.Background(), img)
	require.NoError(t, err)
	defer first.Close()
	second, err := a.Process(context.Background(), img)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, first.ToBytes(), second.ToBytes())
}

type failingEnhanceBackend struct{}

func (f *failingEnhanceBackend) Enhance(img gocv.Mat) (gocv.Mat, error) {
	return gocv.Mat{}, errors.New("enhance failed")
}

func TestProcessorErrorReturnsClosedMat(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindAutoEnhance: &failingEnhanceBackend{},
	})

	img := solidImage(t, 8, 8, color.RGBA{})
	defer img.Close()

	out, err := NewAutoEnhancer(r).Process(context.Background(), img)
	require.Error(t, err)
	assert.True(t, out.Closed(), "error paths must not hand back a live Mat")
}

func TestAutoEnhancerRepeatedApplicationStaysBounded(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindAutoEnhance: vision.NewCLAHEEnhancer(),
	})

	img := noisyImage(t, 48, 48)
	defer img.Close()
	base := imaging.MeanBrightness(img)

	// Re-enhancing an already enhanced image must settle, not drift off
	// toward black or white.
	a := NewAutoEnhancer(r)
	current := img.Clone()
	for i := 0; i < 8; i++ {
		next, err := a.Process(context.Background(), current)
		require.NoError(t, err)
		current.Close()
		current = next

		assert.InDelta(t, base, imaging.MeanBrightness(current), 60, "iteration %d", i)
	}
	current.Close()
}

type fakeDetectionModel struct {
	dets []vision.Detection
	err  error
}

func (f *fakeDetectionModel) Detect(img gocv.Mat, confidence float32) ([]vision.Detection, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]vision.Detection, 0, len(f.dets))
	for _, d := range f.dets {
		if d.Confidence >= confidence {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDetectionModel) ClassNames() []string { return []string{"person", "dog"} }

func TestNewDetectorValidation(t *testing.T) {
	r := registry.New()
	for _, threshold := range []float32{-0.5, -0.01, 1.01} {
		_, err := NewDetector(r, threshold, nil)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), "threshold %g", threshold)
	}
	// Zero disables the cutoff entirely and is a legal value.
	for _, threshold := range []float32{0, 0.25, 1} {
		_, err := NewDetector(r, threshold, nil)
		assert.NoError(t, err, "threshold %g", threshold)
	}
}

func TestDetectorFiltersClasses(t *testing.T) {
	dets := []vision.Detection{
		{Box: vision.Box{X2: 10, Y2: 10}, Label: "person", ClassID: 0, Confidence: 0.9},
		{Box: vision.Box{X1: 20, Y1: 20, X2: 40, Y2: 40}, Label: "dog", ClassID: 16, Confidence: 0.8},
	}
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDetection: &fakeDetectionModel{dets: dets},
	})

	img := solidImage(t, 64, 64, color.RGBA{})
	defer img.Close()

	d, err := NewDetector(r, 0.5, []string{"dog"})
	require.NoError(t, err)
	found, err := d.Detect(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "dog", found[0].Label)
}

func TestDetectorPropagatesBackendFailure(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDetection: &fakeDetectionModel{err: errors.New("session died")},
	})

	img := solidImage(t, 8, 8, color.RGBA{})
	defer img.Close()

	d, err := NewDetector(r, 0.5, nil)
	require.NoError(t, err)
	_, err = d.Detect(context.Background(), img)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeProcessing))
}

func TestDetectorVisualizeDoesNotMutateInput(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDetection: &fakeDetectionModel{},
	})

	img := solidImage(t, 32, 32, color.RGBA{B: 50})
	defer img.Close()
	before := img.Clone()
	defer before.Close()

	d, err := NewDetector(r, 0.5, nil)
	require.NoError(t, err)
	annotated := d.Visualize(img, []vision.Detection{
		{Box: vision.Box{X1: 4, Y1: 4, X2: 20, Y2: 20}, Label: "person", Confidence: 0.9},
	})
	defer annotated.Close()

	assert.Equal(t, before.ToBytes(), img.ToBytes())
	assert.NotEqual(t, before.ToBytes(), annotated.ToBytes())
}

type fakeSegmentationModel struct {
	lastBox    vision.Box
	lastPoints []vision.Point
	lastLabels []int
}

func (f *fakeSegmentationModel) SegmentBox(img gocv.Mat, box vision.Box) (gocv.Mat, error) {
	f.lastBox = box
	return fullMask(img), nil
}

func (f *fakeSegmentationModel) SegmentPoints(img gocv.Mat, points []vision.Point, labels []int) (gocv.Mat, error) {
	f.lastPoints = points
	f.lastLabels = labels
	return fullMask(img), nil
}

func fullMask(img gocv.Mat) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), img.Rows(), img.Cols(), gocv.MatTypeCV8UC1)
}

func TestSegmentObjectExpandsAndClampsBox(t *testing.T) {
	seg := &fakeSegmentationModel{}
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDetection: &fakeDetectionModel{dets: []vision.Detection{
			{Box: vision.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}, Label: "dog", Confidence: 0.9},
		}},
		registry.KindSegmentation: seg,
	})

	img := solidImage(t, 64, 64, color.RGBA{})
	defer img.Close()

	s := NewSegmenter(r)

	// Requested expansion beyond the cap gets clamped to 0.5 per side and
	// to the image bounds.
	out, err := s.SegmentObject(context.Background(), img, "dog", 3.0)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, float32(0), seg.lastBox.X1)
	assert.Equal(t, float32(0), seg.lastBox.Y1)
	assert.Equal(t, float32(64), seg.lastBox.X2)
	assert.Equal(t, float32(64), seg.lastBox.Y2)
	assert.Equal(t, 4, out.Channels())
}

func TestSegmentObjectUnknownClass(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDetection:    &fakeDetectionModel{},
		registry.KindSegmentation: &fakeSegmentationModel{},
	})

	img := solidImage(t, 16, 16, color.RGBA{})
	defer img.Close()

	s := NewSegmenter(r)
	_, err := s.SegmentObject(context.Background(), img, "dog", 0.1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestSegmentByPointsValidation(t *testing.T) {
	r := registry.New()
	s := NewSegmenter(r)
	img := solidImage(t, 16, 16, color.RGBA{})
	defer img.Close()

	_, err := s.SegmentByPoints(context.Background(), img, nil, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = s.SegmentByPoints(context.Background(), img,
		[]vision.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}, []int{1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = s.SegmentByPoints(context.Background(), img,
		[]vision.Point{{X: 1, Y: 1}}, []int{2})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = s.SegmentByPoints(context.Background(), img,
		[]vision.Point{{X: 100, Y: 1}}, []int{1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestSegmentByPointsForwardsPrompts(t *testing.T) {
	seg := &fakeSegmentationModel{}
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindSegmentation: seg,
	})

	img := solidImage(t, 32, 32, color.RGBA{})
	defer img.Close()

	s := NewSegmenter(r)
	points := []vision.Point{{X: 5, Y: 6}, {X: 10, Y: 12}}
	labels := []int{1, 0}
	out, err := s.SegmentByPoints(context.Background(), img, points, labels)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, points, seg.lastPoints)
	assert.Equal(t, labels, seg.lastLabels)
}

type fakeInpainter struct {
	called bool
}

func (f *fakeInpainter) Inpaint(img gocv.Mat, mask gocv.Mat) (gocv.Mat, error) {
	f.called = true
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 2, 3, 0), img.Rows(), img.Cols(), gocv.MatTypeCV8UC3), nil
}

func TestNewObjectRemoverRequiresClasses(t *testing.T) {
	r := registry.New()
	_, err := NewObjectRemover(r, nil, 0.5)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestRemoveWithoutDetectionsReturnsInputUnchanged(t *testing.T) {
	inpainter := &fakeInpainter{}
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDetection:     &fakeDetectionModel{},
		registry.KindObjectRemoval: inpainter,
	})

	img := noisyImage(t, 24, 24)
	defer img.Close()

	remover, err := NewObjectRemover(r, []string{"person"}, 0.5)
	require.NoError(t, err)
	out, err := remover.Remove(context.Background(), img)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, img.ToBytes(), out.ToBytes())
	assert.False(t, inpainter.called, "inpainting must be skipped with nothing to remove")
}

func TestRemoveInpaintsDetectedRegions(t *testing.T) {
	inpainter := &fakeInpainter{}
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindDetection: &fakeDetectionModel{dets: []vision.Detection{
			{Box: vision.Box{X1: 2, Y1: 2, X2: 10, Y2: 10}, Label: "person", Confidence: 0.9},
		}},
		registry.KindObjectRemoval: inpainter,
	})

	img := noisyImage(t, 24, 24)
	defer img.Close()

	remover, err := NewObjectRemover(r, []string{"person"}, 0.5)
	require.NoError(t, err)
	out, err := remover.Remove(context.Background(), img)
	require.NoError(t, err)
	defer out.Close()

	assert.True(t, inpainter.called)
}

type fakeMattingModel struct{}

func (f *fakeMattingModel) Matte(img gocv.Mat) (gocv.Mat, error) {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 0, 0, 0), img.Rows(), img.Cols(), gocv.MatTypeCV8UC1), nil
}

func TestBackgroundRemoverProducesBGRA(t *testing.T) {
	r := newTestRegistry(t, map[registry.Kind]any{
		registry.KindBackgroundRemoval: &fakeMattingModel{},
	})

	img := solidImage(t, 16, 16, color.RGBA{R: 10, G: 20, B: 30})
	defer img.Close()

	b := NewBackgroundRemover(r)
	out, err := b.Process(context.Background(), img)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 4, out.Channels())
	channels := gocv.Split(out)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()
	assert.Equal(t, 128.0, channels[3].Mean().Val1)
}
