package processor

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	apperrors "go-image-studio/internal/errors"
	"go-image-studio/internal/registry"
)

// Processor is one image transformation. Implementations never mutate the
// input Mat and always return a newly allocated result the caller owns.
type Processor interface {
	// Name identifies the processor in pipeline stage errors.
	Name() string
	// Kind names the capability the processor draws its model from.
	Kind() registry.Kind
	Process(ctx context.Context, img gocv.Mat) (gocv.Mat, error)
}

// model fetches the capability handle and asserts its backend type. A type
// mismatch means the container wired the wrong loader, which is an internal
// bug rather than a request problem.
func model[T any](ctx context.Context, reg *registry.Registry, kind registry.Kind) (T, error) {
	var zero T
	handle, err := reg.Get(ctx, kind)
	if err != nil {
		return zero, err
	}
	backend, ok := handle.Model.(T)
	if !ok {
		return zero, apperrors.NewInternalError(
			fmt.Sprintf("capability %s holds unexpected backend %T", kind, handle.Model), nil)
	}
	return backend, nil
}
