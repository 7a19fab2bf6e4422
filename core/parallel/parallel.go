// Package parallel provides bounded worker pools for grid search and
// ensemble construction.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers normalizes a requested worker count. Values below 1 mean
// GOMAXPROCS.
func Workers(n int) int {
	if n < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// ForEach runs fn for every index in [0, n) with at most limit goroutines.
// It returns the first error; the context passed to fn is cancelled once any
// call fails so remaining work can stop early.
func ForEach(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers(limit))
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// Parallelize divides items into contiguous ranges, one per worker, and runs
// fn on each range concurrently.
func Parallelize(items, limit int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := Workers(limit)
	if numWorkers > items {
		numWorkers = items
	}
	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var g errgroup.Group
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	_ = g.Wait()
}

// ParallelizeWithThreshold runs fn(0, items) inline when items does not
// exceed threshold and falls back to Parallelize otherwise.
func ParallelizeWithThreshold(items, threshold, limit int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, limit, fn)
}
