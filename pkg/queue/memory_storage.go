package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultRetention = 1000

// MemoryStorage implements the queue storage interfaces in process memory.
// Intended for tests and single-process deployments.
type MemoryStorage struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job

	byStatus map[Status][]uuid.UUID

	// Completed and failed jobs are kept in finish order and pruned
	// beyond the retention cap.
	completedOrder []uuid.UUID
	failedOrder    []uuid.UUID
	retention      int

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStorage creates an in-memory storage with a background manager
// that releases expired claim locks.
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		jobs:      make(map[uuid.UUID]*Job),
		byStatus:  make(map[Status][]uuid.UUID),
		retention: defaultRetention,
		done:      make(chan struct{}),
	}

	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()

	return ms
}

// Close stops the background goroutines.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// CreateJob implements EnqueuerStorage.
func (ms *MemoryStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrPayloadNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}

	jobCopy := *job
	ms.jobs[job.ID] = &jobCopy
	ms.byStatus[job.Status] = append(ms.byStatus[job.Status], job.ID)

	return nil
}

// ClaimJob implements WorkerStorage. Selection is priority first (lower
// value wins), earliest visibility second.
func (ms *MemoryStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Job

	for _, jobID := range ms.byStatus[StatusPending] {
		job := ms.jobs[jobID]

		if !slices.Contains(queues, job.Queue) {
			continue
		}
		if job.VisibleAt.After(now) {
			continue
		}
		if job.LockedUntil != nil && job.LockedUntil.After(now) {
			continue
		}

		if best == nil ||
			job.Priority < best.Priority ||
			(job.Priority == best.Priority && job.VisibleAt.Before(best.VisibleAt)) {
			best = job
		}
	}

	if best == nil {
		return nil, ErrNoJobToClaim
	}

	lockUntil := now.Add(lockFor)
	best.Status = StatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	ms.removeFromStatusIndex(best.ID, StatusPending)
	ms.byStatus[StatusProcessing] = append(ms.byStatus[StatusProcessing], best.ID)

	jobCopy := *best
	return &jobCopy, nil
}

// CompleteJob implements WorkerStorage.
func (ms *MemoryStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.Status != StatusProcessing {
		return ErrJobNotProcessing
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.removeFromStatusIndex(jobID, StatusProcessing)
	ms.byStatus[StatusCompleted] = append(ms.byStatus[StatusCompleted], jobID)
	ms.completedOrder = append(ms.completedOrder, jobID)
	ms.pruneLocked(&ms.completedOrder, StatusCompleted)

	return nil
}

// FailJob implements WorkerStorage. Jobs with remaining attempts return to
// pending and become visible at retryAt; exhausted jobs are marked failed.
func (ms *MemoryStorage) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string, retryAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.Status != StatusProcessing {
		return ErrJobNotProcessing
	}

	job.Attempts++
	job.Error = &errorMsg
	job.LockedUntil = nil
	job.LockedBy = nil

	if job.Attempts >= job.MaxAttempts {
		ms.markFailedLocked(job, StatusProcessing)
	} else {
		job.Status = StatusPending
		job.VisibleAt = retryAt
		ms.removeFromStatusIndex(jobID, StatusProcessing)
		ms.byStatus[StatusPending] = append(ms.byStatus[StatusPending], jobID)
	}

	return nil
}

// DiscardJob implements WorkerStorage.
func (ms *MemoryStorage) DiscardJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}

	job.Error = &reason
	job.LockedUntil = nil
	job.LockedBy = nil
	ms.markFailedLocked(job, job.Status)

	return nil
}

// Stats returns current queue depths across all queues.
func (ms *MemoryStorage) Stats(ctx context.Context) (Stats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return Stats{
		Pending:    len(ms.byStatus[StatusPending]),
		Processing: len(ms.byStatus[StatusProcessing]),
		Completed:  len(ms.byStatus[StatusCompleted]),
		Failed:     len(ms.byStatus[StatusFailed]),
	}, nil
}

// GetJob returns a copy of the job with the given id.
func (ms *MemoryStorage) GetJob(jobID uuid.UUID) (*Job, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return nil, ErrJobNotFound
	}
	jobCopy := *job
	return &jobCopy, nil
}

func (ms *MemoryStorage) markFailedLocked(job *Job, from Status) {
	now := time.Now()
	ms.removeFromStatusIndex(job.ID, from)
	job.Status = StatusFailed
	job.ProcessedAt = &now

	ms.byStatus[StatusFailed] = append(ms.byStatus[StatusFailed], job.ID)
	ms.failedOrder = append(ms.failedOrder, job.ID)
	ms.pruneLocked(&ms.failedOrder, StatusFailed)
}

func (ms *MemoryStorage) pruneLocked(order *[]uuid.UUID, status Status) {
	for len(*order) > ms.retention {
		oldest := (*order)[0]
		*order = (*order)[1:]
		ms.removeFromStatusIndex(oldest, status)
		delete(ms.jobs, oldest)
	}
}

func (ms *MemoryStorage) removeFromStatusIndex(jobID uuid.UUID, status Status) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == jobID
	})
}

// lockExpirationManager periodically releases locks held past their
// deadline so jobs claimed by a dead worker become claimable again.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

// expireLocks resets stalled jobs to pending. The attempt counter is left
// untouched: a worker crash is not a delivery failure.
func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()

	// Collect first: removeFromStatusIndex rewrites the processing slice in
	// place, so mutating while ranging over it reads zeroed tail entries.
	var expired []uuid.UUID
	for _, jobID := range ms.byStatus[StatusProcessing] {
		job := ms.jobs[jobID]
		if job.LockedUntil != nil && job.LockedUntil.Before(now) {
			expired = append(expired, jobID)
		}
	}

	for _, jobID := range expired {
		job := ms.jobs[jobID]
		job.Status = StatusPending
		job.LockedUntil = nil
		job.LockedBy = nil

		ms.removeFromStatusIndex(jobID, StatusProcessing)
		ms.byStatus[StatusPending] = append(ms.byStatus[StatusPending], jobID)
	}
}
