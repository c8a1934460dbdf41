package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	MaxImageDimension  int

	// Device selection. "auto" probes for an accelerator, "cpu" forces the
	// deterministic CPU path.
	Device          string
	OnnxLibraryPath string

	// Weight resolution
	WeightsCacheDir  string
	WeightSource     string // "http" or "azure"
	AzureAccountName string
	AzureAccountKey  string
	AzureContainer   string

	// Model variants per capability
	DetectionVariant    string
	UpscaleVariant      string
	FaceRestoreVariant  string
	SegmentationVariant string
	MattingVariant      string

	// Capabilities warmed at startup, comma separated capability names.
	Preload []string

	MetricsEnabled bool
	MetricsPort    int
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// ForceCPU reports whether the accelerator probe should be skipped.
func (c *Config) ForceCPU() bool {
	return strings.EqualFold(strings.TrimSpace(c.Device), "cpu")
}

func LoadFromEnv() (*Config, error) {
	// Pick up a local .env if present; a missing file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 60*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 25*1024*1024), // 25MB
		MaxImageDimension:  int(parseIntOrDefault("AI_MAX_IMAGE_SIZE", 4096)),

		Device:          getEnvOrDefault("AI_DEVICE", "auto"),
		OnnxLibraryPath: getEnvOrDefault("AI_ONNXRUNTIME_LIB", "lib/libonnxruntime.so"),

		WeightsCacheDir:  getEnvOrDefault("AI_MODELS_CACHE_DIR", "./models_cache"),
		WeightSource:     getEnvOrDefault("AI_WEIGHT_SOURCE", "http"),
		AzureAccountName: os.Getenv("AI_AZURE_ACCOUNT_NAME"),
		AzureAccountKey:  os.Getenv("AI_AZURE_ACCOUNT_KEY"),
		AzureContainer:   getEnvOrDefault("AI_AZURE_CONTAINER", "model-weights"),

		DetectionVariant:    getEnvOrDefault("AI_YOLO_MODEL", "yolov8n"),
		UpscaleVariant:      getEnvOrDefault("AI_ESRGAN_MODEL", "realesrgan-x4plus"),
		FaceRestoreVariant:  getEnvOrDefault("AI_GFPGAN_VERSION", "gfpgan-v1.4"),
		SegmentationVariant: getEnvOrDefault("AI_SAM_MODEL", "mobile-sam"),
		MattingVariant:      getEnvOrDefault("AI_MATTING_MODEL", "u2net"),

		Preload: splitList(os.Getenv("AI_PRELOAD")),

		MetricsEnabled: parseBoolOrDefault("METRICS_ENABLED", true),
		MetricsPort:    int(parseIntOrDefault("METRICS_PORT", 9091)),
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return nil, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", cfg.MaxRequestBodySize)
	}
	if cfg.MaxImageDimension <= 0 {
		return nil, fmt.Errorf("AI_MAX_IMAGE_SIZE must be > 0 (got %d)", cfg.MaxImageDimension)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %s)", cfg.RequestTimeout)
	}
	switch cfg.WeightSource {
	case "http", "azure":
	default:
		return nil, fmt.Errorf("invalid AI_WEIGHT_SOURCE: %q (want http or azure)", cfg.WeightSource)
	}
	if cfg.WeightSource == "azure" && (cfg.AzureAccountName == "" || cfg.AzureAccountKey == "") {
		return nil, fmt.Errorf("AI_WEIGHT_SOURCE=azure requires AI_AZURE_ACCOUNT_NAME and AI_AZURE_ACCOUNT_KEY")
	}
	if cfg.MetricsEnabled && (cfg.MetricsPort < 1 || cfg.MetricsPort > 65535) {
		return nil, fmt.Errorf("invalid METRICS_PORT: %d", cfg.MetricsPort)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
