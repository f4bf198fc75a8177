package fn

import (
	"context"
	"sync"
)

// ParMap applies f to each item with bounded concurrency, preserving order.
// Items not yet started when ctx is cancelled are left as the zero value.
func ParMap[T, U any](ctx context.Context, items []T, workers int, f func(context.Context, int, T) U) []U {
	out := make([]U, len(items))
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}
	if workers == 0 {
		return out
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, v := range items {
		select {
		case <-ctx.Done():
			wg.Wait()
			return out
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			out[i] = f(ctx, i, v)
		}(i, v)
	}
	wg.Wait()
	return out
}
