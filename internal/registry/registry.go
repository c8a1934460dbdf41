package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "go-image-studio/internal/errors"
)

// LoaderFunc constructs a model backend. Loaders run at most once per
// registry entry, on first use.
type LoaderFunc func(ctx context.Context) (any, error)

// Spec declares how one capability gets its model.
type Spec struct {
	Kind    Kind
	Variant string
	// Primary is the preferred loader.
	Primary LoaderFunc
	// Fallback, when set, is tried after a primary failure and marks the
	// resulting handle as degraded. Entries without a fallback fail hard.
	Fallback LoaderFunc
}

// Handle is a loaded model bound to its capability.
type Handle struct {
	Kind    Kind
	Variant string
	Model   any
	// Degraded is set when the fallback loader produced the model.
	Degraded bool
}

// Status is a point-in-time view of one entry, safe to build without
// triggering a load.
type Status struct {
	Kind     Kind   `json:"kind"`
	Variant  string `json:"variant"`
	Loaded   bool   `json:"loaded"`
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
}

type entry struct {
	spec   Spec
	once   sync.Once
	done   atomic.Bool
	handle *Handle
	err    error
}

// Registry owns lazy model loading. Each capability has exactly one entry;
// the first Get for a kind runs its loader, concurrent callers block on the
// same load and share the resulting handle.
type Registry struct {
	mu        sync.RWMutex
	entries   map[Kind]*entry
	publisher loadPublisher
}

// New creates an empty registry with the given load observers attached.
func New(observers ...LoadObserver) *Registry {
	r := &Registry{entries: make(map[Kind]*entry)}
	for _, obs := range observers {
		r.publisher.subscribe(obs)
	}
	return r
}

// Subscribe attaches an additional load observer.
func (r *Registry) Subscribe(observer LoadObserver) {
	r.publisher.subscribe(observer)
}

// Register declares a capability. Registering the same kind twice is a
// programming error and fails.
func (r *Registry) Register(spec Spec) error {
	if spec.Primary == nil {
		return fmt.Errorf("registry: %s has no primary loader", spec.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[spec.Kind]; exists {
		return fmt.Errorf("registry: %s already registered", spec.Kind)
	}
	r.entries[spec.Kind] = &entry{spec: spec}
	return nil
}

// Get returns the handle for a capability, loading the model on first use.
// A failed primary load falls back to the degraded loader when one exists;
// otherwise the capability is reported unavailable. Load failures are
// sticky: retrying would repeat the same expensive failure.
func (r *Registry) Get(ctx context.Context, kind Kind) (*Handle, error) {
	r.mu.RLock()
	e, ok := r.entries[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewUnavailableCapabilityError(fmt.Sprintf("capability %s is not registered", kind), nil)
	}

	e.once.Do(func() {
		// The load outlives the request that triggered it. Running it under
		// the caller's context would let one client timing out mid-download
		// poison the capability for every later request.
		e.handle, e.err = r.load(context.WithoutCancel(ctx), e.spec)
		e.done.Store(true)
	})
	if e.err != nil {
		return nil, e.err
	}
	return e.handle, nil
}

func (r *Registry) load(ctx context.Context, spec Spec) (*Handle, error) {
	start := time.Now()
	model, primaryErr := spec.Primary(ctx)
	if primaryErr == nil {
		r.publisher.notify(LoadEvent{
			Kind:     spec.Kind,
			Variant:  spec.Variant,
			Duration: time.Since(start),
			Success:  true,
		})
		return &Handle{Kind: spec.Kind, Variant: spec.Variant, Model: model}, nil
	}

	if spec.Fallback == nil {
		r.publisher.notify(LoadEvent{
			Kind:         spec.Kind,
			Variant:      spec.Variant,
			Duration:     time.Since(start),
			PrimaryError: primaryErr.Error(),
		})
		return nil, apperrors.NewUnavailableCapabilityError(
			fmt.Sprintf("capability %s unavailable", spec.Kind), primaryErr)
	}

	model, fallbackErr := spec.Fallback(ctx)
	if fallbackErr != nil {
		r.publisher.notify(LoadEvent{
			Kind:         spec.Kind,
			Variant:      spec.Variant,
			Duration:     time.Since(start),
			Fallback:     true,
			PrimaryError: primaryErr.Error(),
		})
		return nil, apperrors.NewUnavailableCapabilityError(
			fmt.Sprintf("capability %s unavailable, fallback also failed: %v", spec.Kind, fallbackErr), primaryErr)
	}

	r.publisher.notify(LoadEvent{
		Kind:         spec.Kind,
		Variant:      spec.Variant,
		Duration:     time.Since(start),
		Fallback:     true,
		Success:      true,
		PrimaryError: primaryErr.Error(),
	})
	return &Handle{Kind: spec.Kind, Variant: spec.Variant, Model: model, Degraded: true}, nil
}

// Snapshot reports the state of every entry without triggering loads.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, kind := range AllKinds() {
		if e, ok := r.entries[kind]; ok {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	statuses := make([]Status, 0, len(entries))
	for _, e := range entries {
		status := Status{Kind: e.spec.Kind, Variant: e.spec.Variant}
		// A load in flight reports as not loaded; the done flag orders the
		// handle/err reads after the loader finished.
		if e.done.Load() {
			if e.handle != nil {
				status.Loaded = true
				status.Degraded = e.handle.Degraded
			} else if e.err != nil {
				status.Error = e.err.Error()
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Registered reports whether the capability has an entry.
func (r *Registry) Registered(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[kind]
	return ok
}
