package device

import "errors"

var (
	// ErrInvalidRegistration is returned when user id or token is empty.
	ErrInvalidRegistration = errors.New("device: user id and token are required")

	// ErrNilPool is returned when a nil connection pool is provided.
	ErrNilPool = errors.New("device: connection pool cannot be nil")
)
