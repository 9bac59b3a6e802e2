package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

func newJob(q string, priority queue.Priority, visibleAt time.Time) *queue.Job {
	return &queue.Job{
		ID:          uuid.New(),
		Queue:       q,
		Name:        "test.job",
		Payload:     []byte(`{}`),
		Status:      queue.StatusPending,
		Priority:    priority,
		MaxAttempts: queue.DefaultMaxAttempts,
		VisibleAt:   visibleAt,
		CreatedAt:   visibleAt,
	}
}

func TestMemoryStorage_ClaimJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	workerID := uuid.New()

	t.Run("priority beats enqueue order", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		defer ms.Close()

		base := time.Now().Add(-time.Minute)
		normal := newJob("q", queue.PriorityNormal, base)
		high := newJob("q", queue.PriorityHigh, base.Add(time.Second))
		require.NoError(t, ms.CreateJob(ctx, normal))
		require.NoError(t, ms.CreateJob(ctx, high))

		claimed, err := ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, high.ID, claimed.ID, "younger high-priority job claims first")

		claimed, err = ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, normal.ID, claimed.ID)
	})

	t.Run("fifo within a priority tier", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		defer ms.Close()

		base := time.Now().Add(-time.Minute)
		first := newJob("q", queue.PriorityNormal, base)
		second := newJob("q", queue.PriorityNormal, base.Add(time.Second))
		require.NoError(t, ms.CreateJob(ctx, second))
		require.NoError(t, ms.CreateJob(ctx, first))

		claimed, err := ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, first.ID, claimed.ID)
	})

	t.Run("delayed job stays hidden", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		defer ms.Close()

		delayed := newJob("q", queue.PriorityHigh, time.Now().Add(time.Hour))
		require.NoError(t, ms.CreateJob(ctx, delayed))

		_, err := ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("ignores other queues", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		defer ms.Close()

		require.NoError(t, ms.CreateJob(ctx, newJob("other", queue.PriorityHigh, time.Now().Add(-time.Minute))))

		_, err := ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("claimed job is not claimable twice", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		defer ms.Close()

		require.NoError(t, ms.CreateJob(ctx, newJob("q", queue.PriorityNormal, time.Now().Add(-time.Minute))))

		_, err := ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
		require.NoError(t, err)

		_, err = ms.ClaimJob(ctx, uuid.New(), []string{"q"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})
}

func TestMemoryStorage_FailJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	workerID := uuid.New()

	t.Run("retries until attempts are exhausted", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		defer ms.Close()

		job := newJob("q", queue.PriorityNormal, time.Now().Add(-time.Minute))
		require.NoError(t, ms.CreateJob(ctx, job))

		for attempt := 1; attempt <= int(queue.DefaultMaxAttempts); attempt++ {
			claimed, err := ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
			require.NoError(t, err)
			require.NoError(t, ms.FailJob(ctx, claimed.ID, "apns unavailable", time.Now().Add(-time.Second)))

			stored, err := ms.GetJob(job.ID)
			require.NoError(t, err)
			assert.Equal(t, int8(attempt), stored.Attempts)
			if attempt < int(queue.DefaultMaxAttempts) {
				assert.Equal(t, queue.StatusPending, stored.Status)
			} else {
				assert.Equal(t, queue.StatusFailed, stored.Status)
			}
		}

		_, err := ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("retry honors visibility time", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		defer ms.Close()

		job := newJob("q", queue.PriorityNormal, time.Now().Add(-time.Minute))
		require.NoError(t, ms.CreateJob(ctx, job))

		claimed, err := ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, ms.FailJob(ctx, claimed.ID, "boom", time.Now().Add(time.Hour)))

		_, err = ms.ClaimJob(ctx, workerID, []string{"q"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoJobToClaim, "retry must wait for its backoff window")
	})

	t.Run("fail requires processing state", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		defer ms.Close()

		job := newJob("q", queue.PriorityNormal, time.Now().Add(-time.Minute))
		require.NoError(t, ms.CreateJob(ctx, job))

		err := ms.FailJob(ctx, job.ID, "boom", time.Now())
		require.ErrorIs(t, err, queue.ErrJobNotProcessing)
	})
}

func TestMemoryStorage_DiscardJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := queue.NewMemoryStorage()
	defer ms.Close()

	job := newJob("q", queue.PriorityNormal, time.Now().Add(-time.Minute))
	require.NoError(t, ms.CreateJob(ctx, job))

	claimed, err := ms.ClaimJob(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, ms.DiscardJob(ctx, claimed.ID, "no handler"))

	stored, err := ms.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, stored.Status)
	assert.Equal(t, int8(0), stored.Attempts, "discard does not consume attempts")
	require.NotNil(t, stored.Error)
	assert.Equal(t, "no handler", *stored.Error)
}

func TestMemoryStorage_LockExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := queue.NewMemoryStorage()
	defer ms.Close()

	job := newJob("q", queue.PriorityNormal, time.Now().Add(-time.Minute))
	require.NoError(t, ms.CreateJob(ctx, job))

	// Claim with a lock that expires almost immediately, simulating a
	// worker that died mid-flight.
	_, err := ms.ClaimJob(ctx, uuid.New(), []string{"q"}, 10*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := ms.GetJob(job.ID)
		return err == nil && stored.Status == queue.StatusPending
	}, 5*time.Second, 50*time.Millisecond, "stalled job must return to pending")

	stored, err := ms.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, int8(0), stored.Attempts, "stall recovery must not consume an attempt")
	assert.Nil(t, stored.LockedBy)

	claimed, err := ms.ClaimJob(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.ID, claimed.ID)
}

func TestMemoryStorage_Stats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := queue.NewMemoryStorage()
	defer ms.Close()

	for range 3 {
		require.NoError(t, ms.CreateJob(ctx, newJob("q", queue.PriorityNormal, time.Now().Add(-time.Minute))))
	}
	claimed, err := ms.ClaimJob(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, ms.CompleteJob(ctx, claimed.ID))

	stats, err := ms.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 0, stats.Processing)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
}
