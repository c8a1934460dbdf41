package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-image-studio/internal/config"
	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/pipeline"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/service"
	"go-image-studio/internal/vision"
	"go-image-studio/pkg/models"
)

// fakeService records calls and returns canned results.
type fakeService struct {
	result    *service.Result
	outcome   *service.DetectionOutcome
	err       error
	lastCall  string
	lastScale int
	lastPipe  pipeline.Params
}

func (f *fakeService) Upscale(ctx context.Context, data []byte, scale int) (*service.Result, error) {
	f.lastCall, f.lastScale = "upscale", scale
	return f.result, f.err
}

func (f *fakeService) EnhanceFace(ctx context.Context, data []byte, upscale int, weight float64) (*service.Result, error) {
	f.lastCall = "enhance_face"
	return f.result, f.err
}

func (f *fakeService) Denoise(ctx context.Context, data []byte, strength float32) (*service.Result, error) {
	f.lastCall = "denoise"
	return f.result, f.err
}

func (f *fakeService) AutoEnhance(ctx context.Context, data []byte) (*service.Result, error) {
	f.lastCall = "auto_enhance"
	return f.result, f.err
}

func (f *fakeService) Sharpen(ctx context.Context, data []byte, amount float64) (*service.Result, error) {
	f.lastCall = "sharpen"
	return f.result, f.err
}

func (f *fakeService) Detect(ctx context.Context, data []byte, threshold float32, classes []string, visualize bool) (*service.DetectionOutcome, error) {
	f.lastCall = "detect"
	return f.outcome, f.err
}

func (f *fakeService) DetectPeople(ctx context.Context, data []byte, threshold float32, visualize bool) (*service.DetectionOutcome, error) {
	f.lastCall = "detect_people"
	return f.outcome, f.err
}

func (f *fakeService) SegmentObject(ctx context.Context, data []byte, className string, expandRatio float64) (*service.Result, error) {
	f.lastCall = "segment_object"
	return f.result, f.err
}

func (f *fakeService) SegmentByPoints(ctx context.Context, data []byte, points []vision.Point, labels []int) (*service.Result, error) {
	f.lastCall = "segment_by_points"
	return f.result, f.err
}

func (f *fakeService) RemoveObjects(ctx context.Context, data []byte, classes []string, threshold float32) (*service.Result, error) {
	f.lastCall = "remove_objects"
	return f.result, f.err
}

func (f *fakeService) ProcessAll(ctx context.Context, data []byte, params pipeline.Params) (*service.Result, error) {
	f.lastCall, f.lastPipe = "process_all", params
	return f.result, f.err
}

func (f *fakeService) Cutout(ctx context.Context, data []byte, params service.CutoutParams) (*service.Result, error) {
	f.lastCall = "cutout"
	return f.result, f.err
}

func (f *fakeService) ModelsInfo() models.ModelsInfoResponse {
	return models.ModelsInfoResponse{
		Device: models.DeviceInfo{Kind: "cpu", Name: "test"},
		Models: []models.ModelStatus{{Kind: "detection", Variant: "yolov8n"}},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Host:               "localhost",
		Port:               "8080",
		RequestTimeout:     5 * time.Second,
		MaxRequestBodySize: 10 << 20,
		MaxImageDimension:  4096,
	}
}

// multipartBody builds a request body with a file part plus form fields.
func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "test.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func doRequest(t *testing.T, handler http.Handler, method, path string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if fields != nil {
		body, contentType := multipartBody(t, fields)
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig(), nil)
	rec := doRequest(t, handler, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "available", resp.Status)
}

func TestUpscaleReturnsImage(t *testing.T) {
	svc := &fakeService{result: &service.Result{PNG: []byte("png data")}}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/upscale", map[string]string{"scale": "4"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png data", rec.Body.String())
	assert.Equal(t, 4, svc.lastScale)
}

func TestUpscaleDefaultsScale(t *testing.T) {
	svc := &fakeService{result: &service.Result{PNG: []byte("x")}}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/upscale", map[string]string{})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, svc.lastScale)
}

func TestUpscaleRejectsNonIntegerScale(t *testing.T) {
	svc := &fakeService{result: &service.Result{PNG: []byte("x")}}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/upscale", map[string]string{"scale": "big"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissingFileIsBadRequest(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/ai/denoise", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "file")
}

func TestValidationErrorStatus(t *testing.T) {
	svc := &fakeService{err: apperrors.NewValidationError("scale must be 2 or 4, got 3", nil)}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/upscale", map[string]string{"scale": "3"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnavailableCapabilityStatus(t *testing.T) {
	svc := &fakeService{err: apperrors.NewUnavailableCapabilityError("capability segmentation unavailable", nil)}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/segment-object", map[string]string{"class_name": "dog"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStageErrorCarriesStageInBody(t *testing.T) {
	svc := &fakeService{err: apperrors.NewStageExecutionError("denoise", assert.AnError)}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/process-all", map[string]string{"denoise": "true"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "denoise", resp.Stage)
}

func TestContextErrorStatuses(t *testing.T) {
	svc := &fakeService{err: context.Canceled}
	handler := NewHandler(svc, testConfig(), nil)
	rec := doRequest(t, handler, http.MethodPost, "/ai/denoise", map[string]string{})
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)

	svc.err = context.DeadlineExceeded
	rec = doRequest(t, handler, http.MethodPost, "/ai/denoise", map[string]string{})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestDegradedHeaderSet(t *testing.T) {
	svc := &fakeService{result: &service.Result{
		PNG:           []byte("x"),
		DegradedKinds: []registry.Kind{registry.KindUpscale},
	}}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/upscale", map[string]string{})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upscale", rec.Header().Get("X-Degraded-Capabilities"))
}

func TestProcessAllParsesStageFields(t *testing.T) {
	svc := &fakeService{result: &service.Result{PNG: []byte("x"), AppliedStages: []string{"denoise", "upscale"}}}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/process-all", map[string]string{
		"remove_background": "false",
		"denoise":           "true",
		"denoise_strength":  "15",
		"upscale":           "true",
		"upscale_factor":    "4",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastPipe.Denoise)
	assert.Equal(t, float32(15), svc.lastPipe.DenoiseStrength)
	assert.True(t, svc.lastPipe.Upscale)
	assert.Equal(t, 4, svc.lastPipe.UpscaleFactor)
	assert.False(t, svc.lastPipe.RemoveBackground)
	assert.Equal(t, "denoise,upscale", rec.Header().Get("X-Pipeline-Stages"))
}

func TestProcessAllBackgroundRemovalDefaultsOn(t *testing.T) {
	svc := &fakeService{result: &service.Result{PNG: []byte("x")}}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/process-all", map[string]string{})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastPipe.RemoveBackground)
	assert.False(t, svc.lastPipe.Denoise)
}

func TestDetectReturnsJSON(t *testing.T) {
	svc := &fakeService{outcome: &service.DetectionOutcome{
		Response: models.DetectionResponse{
			Detections: []models.Detection{{BBox: [4]float32{1, 2, 3, 4}, Class: "dog", Confidence: 0.9}},
			Count:      1,
			Model:      "yolov8n",
		},
	}}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/detect", map[string]string{"confidence": "0.5"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.DetectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Detections, 1)
	assert.Equal(t, "dog", resp.Detections[0].Class)
}

func TestDetectVisualizedReturnsImage(t *testing.T) {
	svc := &fakeService{outcome: &service.DetectionOutcome{
		AnnotatedPNG: []byte("annotated"),
	}}
	handler := NewHandler(svc, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/detect", map[string]string{"visualize": "true"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "annotated", rec.Body.String())
}

func TestSegmentByPointsRejectsMalformedJSON(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/ai/segment-by-points", map[string]string{
		"points": "not json",
		"labels": "[1]",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestModelsInfoEndpoint(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig(), nil)

	rec := doRequest(t, handler, http.MethodGet, "/ai/models/info", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.ModelsInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cpu", resp.Device.Kind)
	require.Len(t, resp.Models, 1)
	assert.Equal(t, "detection", resp.Models[0].Kind)
}
