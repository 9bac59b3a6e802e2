package dispatch

import (
	"context"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// Enqueuer is the producer side of the dispatch pipeline. It validates
// jobs and routes them to the queue matching their type. Enqueueing only
// acknowledges that the job was stored; delivery happens asynchronously.
type Enqueuer struct {
	queue *queue.Enqueuer
}

// NewEnqueuer creates a dispatch producer on top of a queue enqueuer.
func NewEnqueuer(q *queue.Enqueuer) (*Enqueuer, error) {
	if q == nil {
		return nil, ErrNilDependency
	}
	return &Enqueuer{queue: q}, nil
}

// Enqueue validates the job and stores it in the queue named after its
// type, with the type's claim priority.
func (e *Enqueuer) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	return e.queue.Enqueue(ctx, job,
		queue.WithQueue(job.Type.QueueName()),
		queue.WithPriority(job.Type.QueuePriority()),
		queue.WithJobName(JobName),
	)
}
