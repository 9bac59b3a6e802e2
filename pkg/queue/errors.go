package queue

import "errors"

var (
	// ErrStorageNil is returned when a nil storage is provided.
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload.
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrInvalidPriority is returned when priority is outside the valid range.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrNoJobToClaim signals an empty queue; not a failure.
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrJobNotFound is returned when a job id does not exist in storage.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotProcessing is returned when completing or failing a job that
	// is not currently claimed.
	ErrJobNotProcessing = errors.New("job is not in processing state")

	// ErrHandlerNotFound is returned when no handler is registered for a job.
	ErrHandlerNotFound = errors.New("no handler registered for job name")

	// ErrNoHandlers is returned when a worker is started without handlers.
	ErrNoHandlers = errors.New("no job handlers registered")
)
