// Package shutdown collects cleanup steps registered during startup and runs
// them once, newest first, on exit or signal.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/logger"
)

// Func is a single cleanup step.
type Func func(ctx context.Context) error

type step struct {
	name string
	fn   Func
}

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	steps []step
	once  sync.Once
	err   error
	log   logger.Logger
}

// New returns an empty registry.
func New(log logger.Logger) *Registry {
	return &Registry{log: logger.Ensure(log)}
}

// Register appends a cleanup step. Steps registered after Run are ignored.
func (r *Registry) Register(name string, fn Func) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step{name: name, fn: fn})
}

// Run executes every step in reverse registration order exactly once. Later
// calls return the first result. A failing or panicking step does not stop the
// remaining ones.
func (r *Registry) Run(ctx context.Context) error {
	r.once.Do(func() {
		r.mu.Lock()
		steps := r.steps
		r.steps = nil
		r.mu.Unlock()

		var errs []error
		for i := len(steps) - 1; i >= 0; i-- {
			s := steps[i]
			var err error
			if rec := panics.Try(func() { err = s.fn(ctx) }); rec != nil {
				err = rec.AsError()
			}
			if err != nil {
				r.log.ErrorObj("shutdown step failed", "shutdown_error", map[string]string{
					"step":  s.name,
					"error": err.Error(),
				})
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				continue
			}
			r.log.DebugObj("shutdown step finished", "shutdown_step", s.name)
		}
		r.err = errors.Join(errs...)
	})
	return r.err
}
