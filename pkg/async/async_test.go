package async_test

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/async"
)

func TestSettleAll(t *testing.T) {
	t.Parallel()

	t.Run("preserves input order", func(t *testing.T) {
		t.Parallel()

		in := make([]int, 100)
		for i := range in {
			in[i] = i
		}

		out := async.SettleAll(context.Background(), in, 8, func(_ context.Context, v int) string {
			return strconv.Itoa(v * 2)
		})

		require.Len(t, out, len(in))
		for i, got := range out {
			assert.Equal(t, strconv.Itoa(i*2), got)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		out := async.SettleAll(context.Background(), nil, 4, func(_ context.Context, v int) int {
			return v
		})
		assert.Empty(t, out)
	})

	t.Run("bounds concurrency", func(t *testing.T) {
		t.Parallel()

		const limit = 3
		var (
			mu      sync.Mutex
			current int
			peak    int
		)
		gate := make(chan struct{})

		var started atomic.Int32
		done := make(chan struct{})
		go func() {
			defer close(done)
			async.SettleAll(context.Background(), make([]int, 10), limit, func(_ context.Context, _ int) int {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()
				started.Add(1)
				<-gate
				mu.Lock()
				current--
				mu.Unlock()
				return 0
			})
		}()

		// Let workers saturate the semaphore before releasing them.
		for started.Load() < limit {
		}
		close(gate)
		<-done

		assert.LessOrEqual(t, peak, limit)
		assert.Equal(t, limit, peak)
	})

	t.Run("sequential when parallelism is one", func(t *testing.T) {
		t.Parallel()

		order := make([]int, 0, 5)
		async.SettleAll(context.Background(), []int{0, 1, 2, 3, 4}, 1, func(_ context.Context, v int) int {
			order = append(order, v)
			return v
		})
		assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	})
}
