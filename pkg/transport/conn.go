package transport

import (
	"errors"
	"io"
	"sync"
)

// Transport errors.
var (
	ErrUnreachable    = errors.New("peer unreachable")
	ErrRefused        = errors.New("connection refused")
	ErrListenerClosed = errors.New("listener closed")
	ErrServiceInUse   = errors.New("service already registered")
)

// streamConn adapts an io.ReadWriteCloser to Conn.
type streamConn struct {
	io.ReadWriteCloser

	address string
	name    string

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps rwc as a Conn. Close is idempotent.
func NewConn(rwc io.ReadWriteCloser, remoteAddress, remoteName string) Conn {
	return &streamConn{
		ReadWriteCloser: rwc,
		address:         remoteAddress,
		name:            remoteName,
	}
}

func (c *streamConn) RemoteAddress() string { return c.address }
func (c *streamConn) RemoteName() string    { return c.name }

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ReadWriteCloser.Close()
	})
	return c.closeErr
}

var _ Conn = (*streamConn)(nil)
