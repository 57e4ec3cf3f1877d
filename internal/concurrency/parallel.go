package concurrency

import (
	"context"
	"sync"
)

// Options configures parallel processing.
type Options struct {
	// Workers is the maximum number of items processed at the same time.
	Workers int
}

func DefaultOptions() Options {
	return Options{Workers: 10}
}

// Map calls fn for every item using at most opts.Workers goroutines.
// Results and errors are index-aligned with items. Items not started because
// ctx was cancelled get ctx.Err() as their error.
func Map[T any, R any](
	ctx context.Context,
	items []T,
	opts Options,
	fn func(ctx context.Context, index int, item T) (R, error),
) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	if len(items) == 0 {
		return results, errs
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultOptions().Workers
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				results[i], errs[i] = fn(ctx, i, items[i])
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results, errs
}

// FirstError returns the first non-nil error, or nil.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
