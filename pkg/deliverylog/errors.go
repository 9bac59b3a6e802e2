package deliverylog

import "errors"

var (
	// ErrNilPool is returned when PostgresStore is constructed without a pool.
	ErrNilPool = errors.New("deliverylog: nil connection pool")

	// ErrInvalidRecord is returned when a record fails basic validation.
	ErrInvalidRecord = errors.New("deliverylog: invalid record")
)
