// Package workpool runs independent tasks with bounded parallelism and
// collects every result before returning.
package workpool

import (
	"context"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"
)

// Result pairs the value produced for one input with its error.
type Result[R any] struct {
	Value R
	Err   error
}

// Map calls fn once per input with at most limit calls in flight (limit <= 0
// means unbounded) and blocks until all of them return. Results keep the input
// order. A failing or panicking task only affects its own Result.
func Map[T, R any](ctx context.Context, limit int, inputs []T, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(inputs))
	if len(inputs) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, in := range inputs {
		g.Go(func() error {
			var (
				val R
				err error
			)
			if rec := panics.Try(func() { val, err = fn(ctx, in) }); rec != nil {
				err = rec.AsError()
			}
			results[i] = Result[R]{Value: val, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
