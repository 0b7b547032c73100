// Package transport carries encoded bridge messages between a caller and a
// worker. Every Port delivers messages in the order they were sent.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once a port has been closed.
var ErrClosed = errors.New("transport: port closed")

// Port is one end of an ordered, bidirectional message channel.
type Port interface {
	// Send enqueues a message for the other end.
	Send(ctx context.Context, msg []byte) error

	// Receive blocks until a message arrives, the port is closed or ctx is
	// done. Messages already delivered are returned before the close error.
	Receive(ctx context.Context) ([]byte, error)

	// Close tears the channel down for both ends. It is idempotent.
	Close() error

	// Done is closed once the channel is torn down.
	Done() <-chan struct{}

	// Err reports why the channel was torn down, nil while it is open.
	Err() error
}
