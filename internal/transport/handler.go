package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-image-studio/internal/config"
	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/imaging"
	"go-image-studio/internal/logger"
	"go-image-studio/internal/monitor"
	"go-image-studio/internal/pipeline"
	"go-image-studio/internal/registry"
	"go-image-studio/internal/service"
	"go-image-studio/internal/vision"
	"go-image-studio/pkg/models"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Service is the processing facade the handler dispatches to.
type Service interface {
	Upscale(ctx context.Context, data []byte, scale int) (*service.Result, error)
	EnhanceFace(ctx context.Context, data []byte, upscale int, weight float64) (*service.Result, error)
	Denoise(ctx context.Context, data []byte, strength float32) (*service.Result, error)
	AutoEnhance(ctx context.Context, data []byte) (*service.Result, error)
	Sharpen(ctx context.Context, data []byte, amount float64) (*service.Result, error)
	Detect(ctx context.Context, data []byte, threshold float32, classes []string, visualize bool) (*service.DetectionOutcome, error)
	DetectPeople(ctx context.Context, data []byte, threshold float32, visualize bool) (*service.DetectionOutcome, error)
	SegmentObject(ctx context.Context, data []byte, className string, expandRatio float64) (*service.Result, error)
	SegmentByPoints(ctx context.Context, data []byte, points []vision.Point, labels []int) (*service.Result, error)
	RemoveObjects(ctx context.Context, data []byte, classes []string, threshold float32) (*service.Result, error)
	ProcessAll(ctx context.Context, data []byte, params pipeline.Params) (*service.Result, error)
	Cutout(ctx context.Context, data []byte, params service.CutoutParams) (*service.Result, error)
	ModelsInfo() models.ModelsInfoResponse
}

// NewHandler builds the HTTP surface.
func NewHandler(svc Service, cfg *config.Config, mon *monitor.Monitor) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(mon),
		requestSizeLimiter(cfg.MaxRequestBodySize),
	)

	r.GET("/health", healthCheck)

	ai := r.Group("/ai")
	{
		ai.POST("/upscale", upscale(svc, cfg))
		ai.POST("/enhance-face", enhanceFace(svc, cfg))
		ai.POST("/denoise", denoise(svc, cfg))
		ai.POST("/auto-enhance", autoEnhance(svc, cfg))
		ai.POST("/sharpen", sharpen(svc, cfg))
		ai.POST("/detect", detect(svc, cfg))
		ai.POST("/detect-people", detectPeople(svc, cfg))
		ai.POST("/segment-object", segmentObject(svc, cfg))
		ai.POST("/segment-by-points", segmentByPoints(svc, cfg))
		ai.POST("/remove-objects", removeObjects(svc, cfg))
		ai.POST("/process-all", processAll(svc, cfg))
		ai.GET("/models/info", modelsInfo(svc))
	}

	r.POST("/cutout", cutout(svc, cfg))

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "available",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

func modelsInfo(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.ModelsInfo())
	}
}

func upscale(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}
		scale, ok := formInt(c, "scale", 2)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.Upscale(ctx, data, scale)
		respondResult(c, result, err)
	}
}

func enhanceFace(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}
		up, ok := formInt(c, "upscale", 1)
		if !ok {
			return
		}
		weight, ok := formFloat(c, "weight", 0.5)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.EnhanceFace(ctx, data, up, weight)
		respondResult(c, result, err)
	}
}

func denoise(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}
		strength, ok := formFloat(c, "strength", 10)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.Denoise(ctx, data, float32(strength))
		respondResult(c, result, err)
	}
}

func autoEnhance(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.AutoEnhance(ctx, data)
		respondResult(c, result, err)
	}
}

func sharpen(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}
		amount, ok := formFloat(c, "amount", 1.0)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.Sharpen(ctx, data, amount)
		respondResult(c, result, err)
	}
}

func detect(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}
		threshold, ok := formFloat(c, "confidence", 0.25)
		if !ok {
			return
		}
		visualize, ok := formBool(c, "visualize", false)
		if !ok {
			return
		}
		classes := splitClasses(c.PostForm("classes"))

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		outcome, err := svc.Detect(ctx, data, float32(threshold), classes, visualize)
		respondDetection(c, outcome, err)
	}
}

func detectPeople(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}
		threshold, ok := formFloat(c, "confidence", 0.25)
		if !ok {
			return
		}
		visualize, ok := formBool(c, "visualize", false)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		outcome, err := svc.DetectPeople(ctx, data, float32(threshold), visualize)
		respondDetection(c, outcome, err)
	}
}

func segmentObject(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}
		expand, ok := formFloat(c, "expand_ratio", 0.1)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.SegmentObject(ctx, data, c.PostForm("class_name"), expand)
		respondResult(c, result, err)
	}
}

func segmentByPoints(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}

		// Points and labels arrive as JSON arrays in form fields:
		// points=[[120,80],[200,150]]  labels=[1,0]
		var rawPoints [][2]float32
		if err := json.Unmarshal([]byte(c.PostForm("points")), &rawPoints); err != nil {
			respondError(c, apperrors.NewValidationError("points must be a JSON array of [x, y] pairs", err))
			return
		}
		var labels []int
		if err := json.Unmarshal([]byte(c.PostForm("labels")), &labels); err != nil {
			respondError(c, apperrors.NewValidationError("labels must be a JSON array of integers", err))
			return
		}
		points := make([]vision.Point, 0, len(rawPoints))
		for _, p := range rawPoints {
			points = append(points, vision.Point{X: p[0], Y: p[1]})
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.SegmentByPoints(ctx, data, points, labels)
		respondResult(c, result, err)
	}
}

func removeObjects(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}
		threshold, ok := formFloat(c, "confidence", 0.3)
		if !ok {
			return
		}
		classes := splitClasses(c.PostForm("classes"))

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.RemoveObjects(ctx, data, classes, float32(threshold))
		respondResult(c, result, err)
	}
}

func processAll(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}

		params := pipeline.DefaultParams()
		var pOK bool
		// Background removal is the one stage that defaults on; clients
		// opt out of it rather than into it.
		if params.RemoveBackground, pOK = formBool(c, "remove_background", true); !pOK {
			return
		}
		if params.Denoise, pOK = formBool(c, "denoise", false); !pOK {
			return
		}
		if params.AutoEnhance, pOK = formBool(c, "auto_enhance", false); !pOK {
			return
		}
		if params.EnhanceFace, pOK = formBool(c, "enhance_face", false); !pOK {
			return
		}
		if params.Upscale, pOK = formBool(c, "upscale", false); !pOK {
			return
		}
		strength, pOK := formFloat(c, "denoise_strength", float64(params.DenoiseStrength))
		if !pOK {
			return
		}
		params.DenoiseStrength = float32(strength)
		if params.FaceWeight, pOK = formFloat(c, "face_weight", params.FaceWeight); !pOK {
			return
		}
		if params.UpscaleFactor, pOK = formInt(c, "upscale_factor", params.UpscaleFactor); !pOK {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.ProcessAll(ctx, data, params)
		respondResult(c, result, err)
	}
}

func cutout(svc Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readImageFile(c)
		if !ok {
			return
		}
		feather, ok := formInt(c, "feather_radius", 2)
		if !ok {
			return
		}
		targetW, ok := formInt(c, "target_width", 0)
		if !ok {
			return
		}
		targetH, ok := formInt(c, "target_height", 0)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, cfg)
		defer cancel()
		result, err := svc.Cutout(ctx, data, service.CutoutParams{
			FeatherRadius: feather,
			TargetWidth:   targetW,
			TargetHeight:  targetH,
			Fit:           imaging.FitMode(c.PostForm("fit")),
		})
		respondResult(c, result, err)
	}
}

// readImageFile pulls the uploaded image out of the multipart form. On
// failure it writes the error response itself.
func readImageFile(c *gin.Context) ([]byte, bool) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, apperrors.NewValidationError("multipart field \"file\" with the image is required", err))
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, apperrors.NewValidationError("failed to read uploaded file", err))
		return nil, false
	}
	return data, true
}

func requestContext(c *gin.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
}

func formInt(c *gin.Context, field string, fallback int) (int, bool) {
	raw := c.PostForm(field)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, apperrors.NewValidationError(fmt.Sprintf("%s must be an integer", field), err))
		return 0, false
	}
	return v, true
}

func formFloat(c *gin.Context, field string, fallback float64) (float64, bool) {
	raw := c.PostForm(field)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError(fmt.Sprintf("%s must be a number", field), err))
		return 0, false
	}
	return v, true
}

func formBool(c *gin.Context, field string, fallback bool) (bool, bool) {
	raw := c.PostForm(field)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		respondError(c, apperrors.NewValidationError(fmt.Sprintf("%s must be a boolean", field), err))
		return false, false
	}
	return v, true
}

func splitClasses(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	classes := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			classes = append(classes, trimmed)
		}
	}
	return classes
}

func respondResult(c *gin.Context, result *service.Result, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	setDegradedHeader(c, result.DegradedKinds)
	if len(result.AppliedStages) > 0 {
		c.Header("X-Pipeline-Stages", strings.Join(result.AppliedStages, ","))
	}
	c.Data(http.StatusOK, "image/png", result.PNG)
}

func respondDetection(c *gin.Context, outcome *service.DetectionOutcome, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	setDegradedHeader(c, outcome.DegradedKinds)
	if outcome.AnnotatedPNG != nil {
		c.Data(http.StatusOK, "image/png", outcome.AnnotatedPNG)
		return
	}
	c.JSON(http.StatusOK, outcome.Response)
}

// setDegradedHeader surfaces fallback-served capabilities. Degraded mode is
// a warning, never a failure, so it travels in a header next to the 200.
func setDegradedHeader(c *gin.Context, kinds []registry.Kind) {
	if len(kinds) == 0 {
		return
	}
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	c.Header("X-Degraded-Capabilities", strings.Join(names, ","))
}

func respondError(c *gin.Context, err error) {
	code := apperrors.GetStatusCode(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client went away mid-request.
		code = http.StatusRequestTimeout
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"request_id":  c.GetString(requestIDKey),
	}).Error("Request failed")

	var appErr *apperrors.AppError
	resp := models.ErrorResponse{Error: http.StatusText(code), Message: err.Error()}
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Stage = appErr.Stage
	}
	c.AbortWithStatusJSON(code, resp)
}

// Middleware

const requestIDKey = "request_id"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(mon *monitor.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": duration.Milliseconds(),
			"ip":          c.ClientIP(),
			"request_id":  c.GetString(requestIDKey),
		}).Info("Request completed")

		if mon != nil {
			mon.ObserveRequest(c.FullPath(), c.Writer.Status(), duration)
		}
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
