package queue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues            []string
	pullInterval      time.Duration
	lockTimeout       time.Duration
	retryBackoff      time.Duration
	maxConcurrentJobs int
	logger            *slog.Logger
}

// WithQueues sets which queues the worker pulls from.
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithPullInterval sets how often the worker checks for new jobs.
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets the claim lock duration. A job whose worker dies is
// reclaimed by another worker after this window.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithRetryBackoff sets the base delay before the first retry; subsequent
// retries double it.
func WithRetryBackoff(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.retryBackoff = d
		}
	}
}

// WithMaxConcurrentJobs sets the maximum number of jobs processed at once.
func WithMaxConcurrentJobs(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentJobs = n
		}
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
