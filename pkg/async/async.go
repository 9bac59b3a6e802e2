package async

import (
	"context"
	"sync"
)

// SettleAll applies fn to every element of in using at most parallelism
// goroutines and returns the outputs in input order. It blocks until all
// elements have been processed. The context is passed through to fn; fn is
// responsible for honoring cancellation, SettleAll itself never drops an
// element.
//
// A parallelism of zero or less runs elements sequentially.
func SettleAll[T any, U any](ctx context.Context, in []T, parallelism int, fn func(context.Context, T) U) []U {
	out := make([]U, len(in))
	if len(in) == 0 {
		return out
	}

	if parallelism <= 1 {
		for i, item := range in {
			out[i] = fn(ctx, item)
		}
		return out
	}
	if parallelism > len(in) {
		parallelism = len(in)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, parallelism)
	for i, item := range in {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			out[i] = fn(ctx, item)
		}()
	}
	wg.Wait()

	return out
}
