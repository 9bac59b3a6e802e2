package async

import "errors"

var (
	// ErrTimeout is returned by AwaitWithTimeout when the computation has not
	// settled within the given duration.
	ErrTimeout = errors.New("async: await timed out")
)
