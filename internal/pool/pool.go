// Package pool runs work over a fixed number of goroutines fed from a
// buffered task channel.
package pool

import (
	"context"
	"runtime"
	"sync"
)

// ProgressCallback is called after every completed item.
type ProgressCallback func(current, total int)

// Options configures Map.
type Options struct {
	Workers          int // <= 0 means runtime.NumCPU()
	ProgressCallback ProgressCallback
}

// Workers returns the effective worker count for n items.
func Workers(requested, n int) int {
	workers := requested
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	// Don't use more workers than tasks
	if n > 0 && workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

type task[T any] struct {
	index int
	item  T
}

type result[R any] struct {
	index int
	value R
}

// Map calls fn for every item and returns the results in item order.
// When ctx is cancelled no further items are dispatched; their slots keep
// the zero value, dispatched reports which items ran, and err is ctx.Err().
func Map[T, R any](ctx context.Context, items []T, opts Options, fn func(context.Context, T) R) (results []R, dispatched []bool, err error) {
	results = make([]R, len(items))
	dispatched = make([]bool, len(items))
	if len(items) == 0 {
		return results, dispatched, ctx.Err()
	}

	numWorkers := Workers(opts.Workers, len(items))
	taskChan := make(chan task[T], numWorkers)
	resultChan := make(chan result[R], numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				resultChan <- result[R]{index: t.index, value: fn(ctx, t.item)}
			}
		}()
	}

	go func() {
		defer close(taskChan)
		for i, item := range items {
			if ctx.Err() != nil {
				return
			}
			select {
			case taskChan <- task[T]{index: i, item: item}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	for r := range resultChan {
		results[r.index] = r.value
		dispatched[r.index] = true
		completed++
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(completed, len(items))
		}
	}

	if completed < len(items) {
		return results, dispatched, ctx.Err()
	}
	return results, dispatched, nil
}

// Stream consumes in with workers goroutines and emits every value fn keeps.
// Output order follows completion, not input. The output channel closes once
// in is drained or ctx is cancelled and running calls have returned.
func Stream[T, R any](ctx context.Context, in <-chan T, workers int, fn func(context.Context, T) (R, bool)) <-chan R {
	numWorkers := Workers(workers, 0)
	out := make(chan R, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				var item T
				var ok bool
				select {
				case <-ctx.Done():
					return
				case item, ok = <-in:
					if !ok {
						return
					}
				}
				value, keep := fn(ctx, item)
				if !keep {
					continue
				}
				select {
				case out <- value:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
