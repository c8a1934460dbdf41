package registry

import (
	"context"
	"runtime"
	"sync"

	"go-image-studio/internal/logger"
)

// Preload warms the given capabilities concurrently so the first request
// does not pay model load latency. Load failures are logged through the
// observers and left sticky; Preload itself never fails the startup.
func (r *Registry) Preload(ctx context.Context, kinds []Kind, workers int) {
	if len(kinds) == 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(kinds) {
		workers = len(kinds)
	}

	jobs := make(chan Kind)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for kind := range jobs {
				if _, err := r.Get(ctx, kind); err != nil {
					logger.WithError(err).WithField("kind", kind).Warn("Preload failed")
				}
			}
		}()
	}

	for _, kind := range kinds {
		jobs <- kind
	}
	close(jobs)
	wg.Wait()
}
