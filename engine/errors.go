package engine

import "errors"

// Contract-level error kinds. Control-thread APIs wrap these; the audio
// thread never returns errors, it renders silence instead.
var (
	ErrInvalidArgument   = errors.New("engine: invalid argument")
	ErrInvalidState      = errors.New("engine: invalid state")
	ErrResourceExhausted = errors.New("engine: resource exhausted")
)
