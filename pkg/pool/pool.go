package pool

import (
	"context"
	"sync"
)

// WorkerFunc processes one item and returns its result.
type WorkerFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Result is the outcome of one item. Index is the item's position in the input slice.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

type task[T any] struct {
	index int
	item  T
}

// Map processes items with numWorkers goroutines and returns one Result per item, in input order.
// Items that were never started because ctx was cancelled carry ctx.Err().
func Map[T, R any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T, R]) []Result[R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	results := make([]Result[R], len(items))
	started := make([]bool, len(items))

	var wg sync.WaitGroup
	taskChan := make(chan task[T], numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				select {
				case <-ctx.Done():
					continue
				default:
				}
				started[t.index] = true
				value, err := workerFunc(ctx, t.item)
				results[t.index] = Result[R]{Index: t.index, Value: value, Err: err}
			}
		}()
	}

OUT:
	for i, item := range items {
		select {
		case taskChan <- task[T]{index: i, item: item}:
		case <-ctx.Done():
			// Stop feeding tasks if the context is cancelled
			break OUT
		}
	}
	close(taskChan)
	wg.Wait()

	for i := range results {
		if !started[i] {
			results[i] = Result[R]{Index: i, Err: ctx.Err()}
		}
	}
	return results
}
