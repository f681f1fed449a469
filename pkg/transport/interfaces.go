package transport

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Conn is an established stream to a peer.
type Conn interface {
	io.ReadWriteCloser

	// RemoteAddress returns the peer Bluetooth address.
	RemoteAddress() string

	// RemoteName returns the peer device name, or "" if unknown.
	RemoteName() string
}

// Listener accepts inbound connections for one service UUID.
type Listener interface {
	// Accept blocks until a peer connects or the listener is closed.
	Accept() (Conn, error)

	// Close stops listening and unblocks Accept.
	Close() error
}

// Adapter is a local radio (or its emulation).
type Adapter interface {
	// Address returns the local address peers dial.
	Address() string

	// Listen starts accepting connections for serviceID.
	Listen(serviceID uuid.UUID) (Listener, error)

	// Dial connects to address. It blocks until connected, refused, or ctx
	// is done.
	Dial(ctx context.Context, address string, serviceID uuid.UUID) (Conn, error)
}
