package transport

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingCloser struct {
	bytes.Buffer
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	if c.closes > 1 {
		return errors.New("closed twice")
	}
	return nil
}

func TestNewConn(t *testing.T) {
	rwc := &countingCloser{}
	c := NewConn(rwc, "AA:BB:CC:DD:EE:FF", "phone")

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", c.RemoteAddress())
	assert.Equal(t, "phone", c.RemoteName())

	n, err := c.Write([]byte("ping"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 8)
	n, err = c.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.Equal(t, 1, rwc.closes)
}
