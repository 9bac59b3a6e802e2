package push

import "errors"

var (
	// ErrNoDeviceSource is returned by the router's resolving helpers when
	// no device source was wired in.
	ErrNoDeviceSource = errors.New("push: router has no device source")
)
