package queue

import "time"

// EnqueuerOption is a functional option for configuring an Enqueuer.
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultQueue    string
	defaultPriority Priority
	enqueueTimeout  time.Duration
}

// WithDefaultQueue sets the default queue name.
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// WithDefaultPriority sets the default priority.
func WithDefaultPriority(priority Priority) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if priority.Valid() {
			o.defaultPriority = priority
		}
	}
}

// WithEnqueueTimeout bounds Enqueue calls whose context has no deadline.
func WithEnqueueTimeout(d time.Duration) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if d > 0 {
			o.enqueueTimeout = d
		}
	}
}

// EnqueueOption is a functional option for the Enqueue method.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	priority    Priority
	maxAttempts int8
	delay       time.Duration
	visibleAt   *time.Time
	name        string
}

// WithQueue sets the queue for the job.
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithPriority sets the priority for the job.
func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithMaxAttempts caps retry attempts (1-10).
func WithMaxAttempts(maxAttempts int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if maxAttempts >= 1 && maxAttempts <= 10 {
			o.maxAttempts = maxAttempts
		}
	}
}

// WithDelay hides the job from workers for the given duration.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithVisibleAt sets the exact time the job becomes claimable.
func WithVisibleAt(visibleAt time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.visibleAt = &visibleAt
	}
}

// WithJobName sets a custom job name.
func WithJobName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.name = name
		}
	}
}
