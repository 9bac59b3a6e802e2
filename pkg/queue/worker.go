package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// WorkerStorage defines the interface for job processing.
type WorkerStorage interface {
	// ClaimJob atomically claims the next visible job, preferring lower
	// priority values and earlier enqueue order within a priority.
	ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Job, error)

	// CompleteJob marks a claimed job as completed.
	CompleteJob(ctx context.Context, jobID uuid.UUID) error

	// FailJob records a failed attempt. The attempt counter is incremented;
	// if attempts remain the job returns to pending and becomes visible at
	// retryAt, otherwise it is marked failed.
	FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string, retryAt time.Time) error

	// DiscardJob marks a job failed immediately, regardless of remaining
	// attempts. Used when retrying cannot help, e.g. no handler exists.
	DiscardJob(ctx context.Context, jobID uuid.UUID, reason string) error
}

// Worker claims and processes jobs from the queue.
type Worker struct {
	storage  WorkerStorage
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	retryBackoff time.Duration
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new job worker.
func NewWorker(storage WorkerStorage, opts ...WorkerOption) (*Worker, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	options := &workerOptions{
		queues:            []string{DefaultQueueName},
		pullInterval:      time.Second,
		lockTimeout:       5 * time.Minute,
		retryBackoff:      2 * time.Second,
		maxConcurrentJobs: 1,
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		storage:      storage,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentJobs),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		retryBackoff: options.retryBackoff,
		logger:       options.logger,
	}, nil
}

// RegisterHandler registers a single job handler.
func (w *Worker) RegisterHandler(handler Handler) {
	if handler == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[handler.Name()] = handler
}

// RegisterHandlers registers multiple job handlers.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	for _, h := range handlers {
		w.RegisterHandler(h)
	}
}

// Start begins processing jobs in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}

	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)

	go w.run()

	w.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker, waiting for active jobs.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active jobs to complete",
		slog.String("worker_id", w.workerID.String()))

	w.wg.Wait()

	w.logger.Info("worker stopped",
		slog.String("worker_id", w.workerID.String()))

	return nil
}

// Run starts the worker and returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// Don't add to the WaitGroup once Stop() has begun,
				// otherwise Stop's Wait may race with the new job.
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil && !errors.Is(err, ErrHandlerNotFound) {
						w.logger.Error("failed to process job",
							slog.String("worker_id", w.workerID.String()),
							slog.String("error", err.Error()))
					}
				}()
			default:
				w.logger.Debug("all worker slots busy, skipping tick",
					slog.String("worker_id", w.workerID.String()))
			}
		}
	}
}

func (w *Worker) pullAndProcess() error {
	job, err := w.storage.ClaimJob(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoJobToClaim) {
			return nil
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return nil
	}

	w.logger.Debug("claimed job",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.String("queue", job.Queue))

	return w.processJob(job)
}

func (w *Worker) processJob(job *Job) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in handler: %v", r)
			w.logger.Error("handler panicked",
				slog.String("worker_id", w.workerID.String()),
				slog.String("job_id", job.ID.String()),
				slog.String("job_name", job.Name),
				slog.Any("panic", r))
			_ = w.handleJobFailure(job, retErr, time.Since(start))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[job.Name]
	w.mu.RUnlock()

	if !ok {
		return w.handleMissingHandler(job)
	}

	// Detached from the worker lifecycle so graceful shutdown lets the
	// job finish; bounded by the lock timeout instead.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	err := handler.Handle(ctx, job.Payload)
	duration := time.Since(start)

	if err != nil {
		return w.handleJobFailure(job, err, duration)
	}

	return w.handleJobSuccess(job, duration)
}

// handleMissingHandler discards jobs that have no registered handler.
// Retrying cannot succeed until the handler is deployed, so the job goes
// straight to the failed set where an operator can requeue it later.
func (w *Worker) handleMissingHandler(job *Job) error {
	w.logger.Error("no handler registered for job name",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name))

	ctx, cancel := w.commitContext()
	defer cancel()

	if err := w.storage.DiscardJob(ctx, job.ID, "no handler registered for job name: "+job.Name); err != nil {
		return fmt.Errorf("failed to discard job %s: %w", job.ID, err)
	}

	return ErrHandlerNotFound
}

func (w *Worker) handleJobFailure(job *Job, execErr error, duration time.Duration) error {
	retryAt := time.Now().Add(w.backoffFor(job.Attempts))

	w.logger.Error("job failed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.Int("attempts", int(job.Attempts)),
		slog.Int("max_attempts", int(job.MaxAttempts)),
		slog.Duration("duration", duration),
		slog.String("error", execErr.Error()))

	ctx, cancel := w.commitContext()
	defer cancel()

	if err := w.storage.FailJob(ctx, job.ID, execErr.Error(), retryAt); err != nil {
		return fmt.Errorf("failed to update job %s status to failed: %w", job.ID, err)
	}

	return nil
}

func (w *Worker) handleJobSuccess(job *Job, duration time.Duration) error {
	ctx, cancel := w.commitContext()
	defer cancel()

	if err := w.storage.CompleteJob(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to mark job %s as completed: %w", job.ID, err)
	}

	w.logger.Info("job completed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.String("queue", job.Queue),
		slog.Duration("duration", duration))

	return nil
}

// commitContext returns a context for recording a job outcome. It is
// detached from the worker lifecycle: a job that finishes while Stop is
// draining must still commit its state, or it stays locked and gets
// redelivered after lock expiry.
func (w *Worker) commitContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// backoffFor doubles the base delay per consumed attempt: 2s, 4s, 8s...
// The cap keeps a misconfigured MaxAttempts from producing hour-long gaps.
func (w *Worker) backoffFor(attempts int8) time.Duration {
	backoff := w.retryBackoff
	for range attempts {
		backoff *= 2
		if backoff >= 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return backoff
}

// WorkerInfo returns identification details about the worker process.
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
