package middleware

import "errors"

var (
	// ErrClosed is returned when a channel is triggered on a closed bus
	ErrClosed = errors.New("bus is closed")

	// ErrDepthExceeded is returned when nested triggers exceed the bus's
	// configured depth limit
	ErrDepthExceeded = errors.New("trigger depth exceeded")
)
