package broker

import "errors"

var (
	// ErrNotConnected indicates a call was attempted before Connect succeeded
	// or after the connection was torn down.
	ErrNotConnected = errors.New("broker: not connected")

	// ErrConnectionLost indicates the broker connection dropped while the
	// call was in flight; its pending entry was discarded.
	ErrConnectionLost = errors.New("broker: connection lost")

	// ErrClosed indicates the client was shut down.
	ErrClosed = errors.New("broker: client closed")

	// ErrCallTimeout indicates no reply arrived within the call's window.
	ErrCallTimeout = errors.New("broker: call timed out")
)
