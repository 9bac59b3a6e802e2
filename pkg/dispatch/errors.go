package dispatch

import "errors"

var (
	// ErrInvalidJobType is returned for unknown job types.
	ErrInvalidJobType = errors.New("dispatch: invalid job type")

	// ErrNoTokens is returned when a job carries no device tokens.
	ErrNoTokens = errors.New("dispatch: job has no tokens")

	// ErrInvalidPlatform is returned for unknown device platforms.
	ErrInvalidPlatform = errors.New("dispatch: invalid platform")

	// ErrNilDependency is returned when a required collaborator is missing.
	ErrNilDependency = errors.New("dispatch: nil dependency")

	// ErrAllDeliveriesFailed signals that no device received the
	// notification and at least one failure is transient; the queue should
	// retry the whole job.
	ErrAllDeliveriesFailed = errors.New("dispatch: all deliveries failed")
)
