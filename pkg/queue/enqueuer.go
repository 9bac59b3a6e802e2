package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerStorage defines the interface for job creation.
type EnqueuerStorage interface {
	CreateJob(ctx context.Context, job *Job) error
}

// Enqueuer serializes payloads and creates jobs.
type Enqueuer struct {
	storage         EnqueuerStorage
	defaultQueue    string
	defaultPriority Priority
	enqueueTimeout  time.Duration
}

// NewEnqueuer creates a new Enqueuer.
func NewEnqueuer(storage EnqueuerStorage, opts ...EnqueuerOption) (*Enqueuer, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	options := &enqueuerOptions{
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
		enqueueTimeout:  5 * time.Second,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		storage:         storage,
		defaultQueue:    options.defaultQueue,
		defaultPriority: options.defaultPriority,
		enqueueTimeout:  options.enqueueTimeout,
	}, nil
}

// Enqueue adds a new job to the queue. Producers must not block on a slow
// backend, so when ctx carries no deadline the call is bounded by the
// enqueue timeout and fails fast instead of waiting.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	if payload == nil {
		return ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:       e.defaultQueue,
		priority:    e.defaultPriority,
		maxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return ErrInvalidPriority
	}

	job, err := e.buildJob(payload, options)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.enqueueTimeout)
		defer cancel()
	}

	if err := e.storage.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to create job %q in queue %q: %w", job.Name, job.Queue, err)
	}

	return nil
}

func (e *Enqueuer) buildJob(payload any, options *enqueueOptions) (*Job, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	name := options.name
	if name == "" {
		name = qualifiedStructName(payload)
	}

	now := time.Now()
	visibleAt := now
	if options.visibleAt != nil {
		visibleAt = *options.visibleAt
	} else if options.delay > 0 {
		visibleAt = visibleAt.Add(options.delay)
	}

	return &Job{
		ID:          uuid.New(),
		Queue:       options.queue,
		Name:        name,
		Payload:     payloadBytes,
		Status:      StatusPending,
		Priority:    options.priority,
		Attempts:    0,
		MaxAttempts: options.maxAttempts,
		VisibleAt:   visibleAt,
		CreatedAt:   now,
	}, nil
}
