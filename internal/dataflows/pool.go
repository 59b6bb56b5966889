package dataflows

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach runs fn over items with at most workers goroutines in flight and
// returns the results in input order. fn must not fail; it reports problems
// through its result value.
func ForEach[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) R) []R {
	if workers < 1 {
		workers = 1
	}
	results := make([]R, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			results[i] = fn(gctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
