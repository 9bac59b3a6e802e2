package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

type dispatchPayload struct {
	Target string `json:"target"`
}

func startWorker(t *testing.T, ms *queue.MemoryStorage, handlers ...queue.Handler) *queue.Worker {
	t.Helper()

	worker, err := queue.NewWorker(ms,
		queue.WithQueues("q"),
		queue.WithPullInterval(10*time.Millisecond),
		queue.WithRetryBackoff(time.Millisecond),
		queue.WithMaxConcurrentJobs(4),
	)
	require.NoError(t, err)
	worker.RegisterHandlers(handlers...)

	require.NoError(t, worker.Start(context.Background()))
	t.Cleanup(func() { _ = worker.Stop() })
	return worker
}

func enqueueTo(t *testing.T, ms *queue.MemoryStorage, payload any, opts ...queue.EnqueueOption) {
	t.Helper()

	enq, err := queue.NewEnqueuer(ms, queue.WithDefaultQueue("q"))
	require.NoError(t, err)
	require.NoError(t, enq.Enqueue(context.Background(), payload, opts...))
}

func TestWorker_ProcessesJob(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	defer ms.Close()

	var got atomic.Value
	handler := queue.NewJobHandler(func(_ context.Context, p dispatchPayload) error {
		got.Store(p.Target)
		return nil
	})

	startWorker(t, ms, handler)
	enqueueTo(t, ms, dispatchPayload{Target: "dept-42"})

	require.Eventually(t, func() bool {
		return got.Load() != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "dept-42", got.Load())

	require.Eventually(t, func() bool {
		stats, err := ms.Stats(context.Background())
		return err == nil && stats.Completed == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	defer ms.Close()

	var attempts atomic.Int32
	handler := queue.NewJobHandler(func(_ context.Context, _ dispatchPayload) error {
		if attempts.Add(1) < 3 {
			return errors.New("provider returned 503")
		}
		return nil
	})

	startWorker(t, ms, handler)
	enqueueTo(t, ms, dispatchPayload{})

	require.Eventually(t, func() bool {
		stats, err := ms.Stats(context.Background())
		return err == nil && stats.Completed == 1
	}, 10*time.Second, 10*time.Millisecond, "third attempt should succeed")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWorker_ExhaustedRetriesFail(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	defer ms.Close()

	var attempts atomic.Int32
	handler := queue.NewJobHandler(func(_ context.Context, _ dispatchPayload) error {
		attempts.Add(1)
		return errors.New("permanent outage")
	})

	startWorker(t, ms, handler)
	enqueueTo(t, ms, dispatchPayload{})

	require.Eventually(t, func() bool {
		stats, err := ms.Stats(context.Background())
		return err == nil && stats.Failed == 1
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(queue.DefaultMaxAttempts), attempts.Load())
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	defer ms.Close()

	handler := queue.NewJobHandler(func(_ context.Context, _ dispatchPayload) error {
		panic("handler bug")
	})

	startWorker(t, ms, handler)
	enqueueTo(t, ms, dispatchPayload{})

	require.Eventually(t, func() bool {
		stats, err := ms.Stats(context.Background())
		return err == nil && stats.Failed == 1
	}, 10*time.Second, 10*time.Millisecond, "panicking handler must consume retries, not crash the worker")
}

func TestWorker_DiscardsUnknownJob(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	defer ms.Close()

	handler := queue.NewNamedJobHandler("known.job", func(_ context.Context, _ dispatchPayload) error {
		return nil
	})

	startWorker(t, ms, handler)
	enqueueTo(t, ms, dispatchPayload{}, queue.WithJobName("unknown.job"))

	require.Eventually(t, func() bool {
		stats, err := ms.Stats(context.Background())
		return err == nil && stats.Failed == 1
	}, 5*time.Second, 10*time.Millisecond)
}

// canceledAwareStorage refuses writes on a done context, the way a real
// network-backed storage would.
type canceledAwareStorage struct {
	*queue.MemoryStorage
}

func (s canceledAwareStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStorage.CompleteJob(ctx, jobID)
}

func TestWorker_CommitsDuringShutdown(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	defer ms.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	handler := queue.NewJobHandler(func(_ context.Context, _ dispatchPayload) error {
		close(started)
		<-release
		return nil
	})

	worker, err := queue.NewWorker(canceledAwareStorage{ms},
		queue.WithQueues("q"),
		queue.WithPullInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	worker.RegisterHandlers(handler)
	require.NoError(t, worker.Start(context.Background()))

	enqueueTo(t, ms, dispatchPayload{})

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		_ = worker.Stop()
	}()

	// Let Stop cancel the worker context before the job finishes.
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	stats, err := ms.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed, "job finishing during shutdown must still commit")
	assert.Zero(t, stats.Processing)
}

func TestWorker_StartValidation(t *testing.T) {
	t.Parallel()

	t.Run("nil storage", func(t *testing.T) {
		t.Parallel()

		_, err := queue.NewWorker(nil)
		require.ErrorIs(t, err, queue.ErrStorageNil)
	})

	t.Run("no handlers", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		defer ms.Close()

		worker, err := queue.NewWorker(ms)
		require.NoError(t, err)
		require.ErrorIs(t, worker.Start(context.Background()), queue.ErrNoHandlers)
	})
}
