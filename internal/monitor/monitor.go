package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"

	"go-image-studio/internal/logger"
	"go-image-studio/internal/registry"
)

// Monitor exposes Prometheus metrics on a separate port: request counters,
// model load state and process resource usage.
type Monitor struct {
	registry *prometheus.Registry
	server   *http.Server
	proc     *process.Process

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	modelLoadsTotal *prometheus.CounterVec
	modelsLoaded    prometheus.Gauge
	memUsage        prometheus.Gauge
	cpuUsage        prometheus.Gauge
}

// New creates a monitor with its own metrics registry.
func New() *Monitor {
	m := &Monitor{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"path", "status"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"path"})

	m.modelLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "model_loads_total",
		Help: "Model load attempts by capability and outcome",
	}, []string{"kind", "outcome"})

	m.modelsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "models_loaded",
		Help: "Number of models currently loaded",
	})

	m.memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_megabytes",
		Help: "Process memory usage in megabytes",
	})

	m.cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "Process CPU usage in percent",
	})

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.modelLoadsTotal,
		m.modelsLoaded,
		m.memUsage,
		m.cpuUsage,
	)

	m.proc = &process.Process{Pid: int32(os.Getpid())}
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *Monitor) ObserveRequest(path string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(path, fmt.Sprintf("%d", status)).Inc()
	m.requestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// OnLoad implements registry.LoadObserver.
func (m *Monitor) OnLoad(event registry.LoadEvent) {
	outcome := "primary"
	switch {
	case !event.Success:
		outcome = "failed"
	case event.Fallback:
		outcome = "fallback"
	}
	m.modelLoadsTotal.WithLabelValues(string(event.Kind), outcome).Inc()
	if event.Success {
		m.modelsLoaded.Inc()
	}
}

// ObserverName implements registry.LoadObserver.
func (m *Monitor) ObserverName() string { return "metrics_observer" }

func (m *Monitor) sample() {
	if info, err := m.proc.MemoryInfo(); err == nil && info != nil {
		m.memUsage.Set(float64(info.RSS) / 1024 / 1024)
	}
	if pct, err := m.proc.CPUPercent(); err == nil {
		m.cpuUsage.Set(pct)
	}
}

// Start serves /metrics on the given port and samples process stats until
// the context is cancelled.
func (m *Monitor) Start(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := m.server.Shutdown(shutdownCtx); err != nil {
					logger.WithError(err).Error("Metrics server shutdown failed")
				}
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}
