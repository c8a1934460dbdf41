package registry

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-image-studio/internal/logger"
)

// LoadEvent describes the outcome of one model load attempt.
type LoadEvent struct {
	Kind     Kind          `json:"kind"`
	Variant  string        `json:"variant"`
	Duration time.Duration `json:"duration"`
	Fallback bool          `json:"fallback"`
	Success  bool          `json:"success"`
	// PrimaryError holds the primary loader failure when the fallback was
	// used, or the terminal failure when nothing loaded.
	PrimaryError string `json:"primary_error,omitempty"`
}

// LoadObserver receives model load events.
type LoadObserver interface {
	OnLoad(event LoadEvent)
	ObserverName() string
}

// LoggingObserver logs load events
type LoggingObserver struct{}

// NewLoggingObserver creates a logging load observer
func NewLoggingObserver() LoadObserver {
	return &LoggingObserver{}
}

// OnLoad handles a load event by logging it
func (o *LoggingObserver) OnLoad(event LoadEvent) {
	fields := logrus.Fields{
		"kind":     event.Kind,
		"variant":  event.Variant,
		"duration": event.Duration,
	}
	if event.PrimaryError != "" {
		fields["primary_error"] = event.PrimaryError
	}

	switch {
	case !event.Success:
		logger.WithFields(fields).Error("Model load failed")
	case event.Fallback:
		logger.WithFields(fields).Warn("Model running in degraded mode, fallback loaded")
	default:
		logger.WithFields(fields).Info("Model loaded")
	}
}

// ObserverName returns the observer name
func (o *LoggingObserver) ObserverName() string {
	return "logging_observer"
}

// loadPublisher fans load events out to observers.
type loadPublisher struct {
	mu        sync.RWMutex
	observers []LoadObserver
}

func (p *loadPublisher) subscribe(observer LoadObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

func (p *loadPublisher) notify(event LoadEvent) {
	p.mu.RLock()
	observers := make([]LoadObserver, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		func(obs LoadObserver) {
			defer func() {
				if r := recover(); r != nil {
					logger.WithFields(logrus.Fields{
						"observer": obs.ObserverName(),
						"panic":    r,
					}).Error("Observer panicked while handling load event")
				}
			}()
			obs.OnLoad(event)
		}(observer)
	}
}
