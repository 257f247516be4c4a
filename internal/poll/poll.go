// Package poll provides the non-blocking primitives relay sessions run on: an
// event queue reporting descriptor readiness, raw descriptor I/O, outbound
// connects that do not wait for the handshake, and detaching accepted
// connections from the Go runtime poller.
package poll

import "errors"

var (
	// ErrWouldBlock is returned by descriptor I/O that cannot make progress
	// until the descriptor becomes ready again.
	ErrWouldBlock = errors.New("poll: operation would block")
	// ErrUnsupported is returned on platforms without an event queue.
	ErrUnsupported = errors.New("poll: not supported on this platform")
	// ErrClosed is returned when using a closed queue or descriptor.
	ErrClosed = errors.New("poll: use of closed descriptor")
)
