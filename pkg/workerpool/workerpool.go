// Package workerpool provides bounded concurrent processing helpers.
package workerpool

import (
	"context"
	"sync"
)

type indexed[T any] struct {
	pos  int
	item T
}

// Map applies fn to every item using at most workerCount goroutines and returns the
// results in input order. The first error cancels the remaining work and is returned.
func Map[T, R any](
	ctx context.Context,
	workerCount int,
	items []T,
	fn func(context.Context, T) (R, error),
) ([]R, error) {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(items))
	tasks := make(chan indexed[T], workerCount)
	errs := make(chan error, workerCount)
	wg := sync.WaitGroup{}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-tasks:
					if !ok {
						return
					}
					res, err := fn(ctx, task.item)
					if err != nil {
						select {
						case errs <- err:
						default:
						}
						cancel()
						return
					}
					results[task.pos] = res
				}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for i, item := range items {
			select {
			case <-ctx.Done():
				return
			case tasks <- indexed[T]{pos: i, item: item}:
			}
		}
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
