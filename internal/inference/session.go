package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"go-image-studio/internal/logger"
)

var (
	initMu      sync.Mutex
	initialized bool
)

// EnsureEnvironment initializes the ONNX Runtime environment once for the
// process. Safe to call from multiple goroutines; only the first call pays
// the initialization cost.
func EnsureEnvironment(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up the ONNX Runtime environment at process teardown.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}
	initialized = false
	return nil
}

// AcceleratorAvailable probes for the CUDA execution provider. The probe is
// cheap once the environment is up and does not create a session.
func AcceleratorAvailable() bool {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return false
	}

	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return false
	}
	_ = opts.Destroy()
	return true
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a new inference session from an ONNX model. When
// accelerated is set, the CUDA execution provider is appended; if that
// fails the session still comes up on CPU.
func NewSession(modelPath string, inputNames, outputNames []string, accelerated bool) (*Session, error) {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call EnsureEnvironment() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if accelerated {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			logger.WithError(err).WithField("model", modelPath).Warn("CUDA provider unavailable, session falls back to CPU")
		} else {
			if err := options.AppendExecutionProviderCUDA(cudaOpts); err != nil {
				logger.WithError(err).WithField("model", modelPath).Warn("Failed to append CUDA provider, session falls back to CPU")
			}
			_ = cudaOpts.Destroy()
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference with the given inputs. ONNX Runtime sessions are
// safe for concurrent Run calls on one handle.
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// ModelPath returns the path the session was created from.
func (s *Session) ModelPath() string {
	return s.modelPath
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates an uninitialized tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	data := make([]T, size)
	return ort.NewTensor(ort.NewShape(shape...), data)
}
