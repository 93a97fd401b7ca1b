package radiostream

import "errors"

// Sentinel errors returned by the stream and recorder lifecycle.
var (
	// ErrInvalidStateTransition is returned by lifecycle methods called
	// from a state they are not valid in.
	ErrInvalidStateTransition = errors.New("invalid recorder state transition")

	// ErrStreamRunning is returned when starting an already running stream.
	ErrStreamRunning = errors.New("stream is already running")

	// ErrStreamNotRunning is returned by operations that need a running
	// receive loop.
	ErrStreamNotRunning = errors.New("stream is not running")
)
