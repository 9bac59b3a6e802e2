package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/deliverylog"
	"github.com/dmitrymomot/notifykit/pkg/device"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// scriptedProvider returns a fixed result per token, keyed by token name.
type scriptedProvider struct {
	mu      sync.Mutex
	outcome map[string]push.Code // missing entry means success
	calls   int
}

func (p *scriptedProvider) Configured() bool { return true }

func (p *scriptedProvider) Send(_ context.Context, tokens []string, _ push.Payload) (push.BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	var batch push.BatchResult
	for _, token := range tokens {
		if code, ok := p.outcome[token]; ok {
			batch.Add(push.Result{Token: token, Error: &push.Error{Code: code, Message: "scripted"}})
		} else {
			batch.Add(push.Result{Success: true, Token: token})
		}
	}
	return batch, nil
}

type fakeCleaner struct {
	mu      sync.Mutex
	deleted [][]string
	err     error
}

func (c *fakeCleaner) DeleteByTokens(_ context.Context, tokens []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.deleted = append(c.deleted, tokens)
	return nil
}

func newDispatcher(t *testing.T, provider push.Provider, cleaner *fakeCleaner) (*dispatch.Dispatcher, *deliverylog.MemoryStore) {
	t.Helper()

	router := push.NewRouter(push.WithAPNS(provider))
	store := deliverylog.NewMemoryStore()
	d, err := dispatch.NewDispatcher(router, cleaner, store)
	require.NoError(t, err)
	return d, store
}

func iosJob(tokens ...string) dispatch.Job {
	return dispatch.Job{
		Type:     dispatch.JobTypeAnnouncement,
		Tokens:   tokens,
		Platform: device.PlatformIOS,
		Payload:  push.Payload{Title: "Assembly at noon"},
	}
}

func TestDispatcher_Process(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("success writes one record", func(t *testing.T) {
		t.Parallel()

		provider := &scriptedProvider{}
		cleaner := &fakeCleaner{}
		d, store := newDispatcher(t, provider, cleaner)

		require.NoError(t, d.Process(ctx, iosJob("a", "b", "c")))

		records, err := store.List(ctx, deliverylog.Filter{})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].Success)
		assert.Equal(t, 3, records[0].TotalDevices)
		assert.Equal(t, 3, records[0].DeliveredTo)
		assert.Zero(t, records[0].FailedCount)
		assert.Empty(t, cleaner.deleted)
	})

	t.Run("invalid tokens are purged", func(t *testing.T) {
		t.Parallel()

		provider := &scriptedProvider{outcome: map[string]push.Code{
			"stale-1": push.CodeUnregisteredToken,
			"stale-2": push.CodeInvalidToken,
		}}
		cleaner := &fakeCleaner{}
		d, store := newDispatcher(t, provider, cleaner)

		require.NoError(t, d.Process(ctx, iosJob("ok-1", "stale-1", "ok-2", "stale-2")))

		require.Len(t, cleaner.deleted, 1)
		assert.ElementsMatch(t, []string{"stale-1", "stale-2"}, cleaner.deleted[0])

		records, err := store.List(ctx, deliverylog.Filter{})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.False(t, records[0].Success, "two devices failed, so the record is not a success")
		assert.Equal(t, 2, records[0].DeliveredTo)
		assert.Equal(t, 2, records[0].FailedCount)
		assert.Equal(t, 2, records[0].InvalidTokens)
	})

	t.Run("partial failure is recorded as unsuccessful", func(t *testing.T) {
		t.Parallel()

		provider := &scriptedProvider{outcome: map[string]push.Code{
			"b": push.CodeServerError,
		}}
		d, store := newDispatcher(t, provider, &fakeCleaner{})

		require.NoError(t, d.Process(ctx, iosJob("a", "b")))

		records, err := store.List(ctx, deliverylog.Filter{})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.False(t, records[0].Success)
		assert.Equal(t, 1, records[0].DeliveredTo)
		assert.Equal(t, 1, records[0].FailedCount)
		assert.Empty(t, records[0].Error, "the job itself completed")
	})

	t.Run("cleanup failure does not fail the job", func(t *testing.T) {
		t.Parallel()

		provider := &scriptedProvider{outcome: map[string]push.Code{
			"stale": push.CodeUnregisteredToken,
		}}
		cleaner := &fakeCleaner{err: context.DeadlineExceeded}
		d, store := newDispatcher(t, provider, cleaner)

		require.NoError(t, d.Process(ctx, iosJob("ok", "stale")))

		records, err := store.List(ctx, deliverylog.Filter{})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.False(t, records[0].Success, "one device failed")
	})

	t.Run("total transient failure is retryable", func(t *testing.T) {
		t.Parallel()

		provider := &scriptedProvider{outcome: map[string]push.Code{
			"a": push.CodeServerError,
			"b": push.CodeServerError,
		}}
		d, store := newDispatcher(t, provider, &fakeCleaner{})

		err := d.Process(ctx, iosJob("a", "b"))
		require.ErrorIs(t, err, dispatch.ErrAllDeliveriesFailed)

		records, listErr := store.List(ctx, deliverylog.Filter{})
		require.NoError(t, listErr)
		require.Len(t, records, 1)
		assert.False(t, records[0].Success)
		assert.Equal(t, 2, records[0].FailedCount)
		assert.Equal(t, records[0].TotalDevices, records[0].FailedCount)
	})

	t.Run("partial delivery is not retried", func(t *testing.T) {
		t.Parallel()

		provider := &scriptedProvider{outcome: map[string]push.Code{
			"b": push.CodeServerError,
		}}
		d, _ := newDispatcher(t, provider, &fakeCleaner{})

		require.NoError(t, d.Process(ctx, iosJob("a", "b")),
			"retrying a partial delivery would duplicate sends to devices that already got it")
	})

	t.Run("total permanent failure is not retried", func(t *testing.T) {
		t.Parallel()

		provider := &scriptedProvider{outcome: map[string]push.Code{
			"a": push.CodeUnregisteredToken,
		}}
		cleaner := &fakeCleaner{}
		d, _ := newDispatcher(t, provider, cleaner)

		require.NoError(t, d.Process(ctx, iosJob("a")))
		require.Len(t, cleaner.deleted, 1)
	})

	t.Run("invalid job is recorded and rejected", func(t *testing.T) {
		t.Parallel()

		d, store := newDispatcher(t, &scriptedProvider{}, &fakeCleaner{})

		err := d.Process(ctx, dispatch.Job{Type: "bogus", Tokens: []string{"a"}, Platform: device.PlatformIOS})
		require.ErrorIs(t, err, dispatch.ErrInvalidJobType)

		records, listErr := store.List(ctx, deliverylog.Filter{})
		require.NoError(t, listErr)
		require.Len(t, records, 1)
		assert.False(t, records[0].Success)
	})
}

// flakyProvider fails every send with a transient code until the failure
// budget is used up, then delivers.
type flakyProvider struct {
	failures atomic.Int32
}

func (p *flakyProvider) Configured() bool { return true }

func (p *flakyProvider) Send(_ context.Context, tokens []string, _ push.Payload) (push.BatchResult, error) {
	if p.failures.Add(-1) >= 0 {
		return push.AllFailed(tokens, push.CodeServerError, "upstream outage"), nil
	}
	var batch push.BatchResult
	for _, token := range tokens {
		batch.Add(push.Result{Success: true, Token: token})
	}
	return batch, nil
}

func TestDispatcher_RetryConvergence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	provider := &flakyProvider{}
	provider.failures.Store(2)

	router := push.NewRouter(push.WithAPNS(provider))
	store := deliverylog.NewMemoryStore()
	d, err := dispatch.NewDispatcher(router, &fakeCleaner{}, store)
	require.NoError(t, err)

	ms := queue.NewMemoryStorage()
	defer ms.Close()

	worker, err := queue.NewWorker(ms,
		queue.WithQueues(dispatch.QueueNames()...),
		queue.WithPullInterval(10*time.Millisecond),
		queue.WithRetryBackoff(time.Millisecond),
	)
	require.NoError(t, err)
	d.Register(worker)
	require.NoError(t, worker.Start(ctx))
	t.Cleanup(func() { _ = worker.Stop() })

	qEnq, err := queue.NewEnqueuer(ms)
	require.NoError(t, err)
	enq, err := dispatch.NewEnqueuer(qEnq)
	require.NoError(t, err)
	require.NoError(t, enq.Enqueue(ctx, iosJob("a", "b")))

	// Two transient failures, then success on the third attempt.
	success := true
	require.Eventually(t, func() bool {
		records, err := store.List(ctx, deliverylog.Filter{Success: &success})
		return err == nil && len(records) == 1
	}, 10*time.Second, 10*time.Millisecond)

	records, err := store.List(ctx, deliverylog.Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 3, "one record per attempt")

	failed := false
	failures, err := store.List(ctx, deliverylog.Filter{Success: &failed})
	require.NoError(t, err)
	assert.Len(t, failures, 2)

	stats, err := ms.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Zero(t, stats.Failed)
}
