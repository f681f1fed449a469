package memory

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfchandover/handover-go/pkg/transport"
)

var serviceID = uuid.MustParse("8ce255c0-200a-11e0-ac64-0800200c9a66")

func TestDialAccept(t *testing.T) {
	n := NewNetwork()
	a := n.NewAdapter("aa:aa:aa:aa:aa:aa", "alpha")
	b := n.NewAdapter("BB:BB:BB:BB:BB:BB", "beta")
	assert.Equal(t, "AA:AA:AA:AA:AA:AA", a.Address())

	l, err := a.Listen(serviceID)
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan transport.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	out, err := b.Dial(context.Background(), "aa:aa:aa:aa:aa:aa", serviceID)
	require.NoError(t, err)
	defer out.Close()

	var in transport.Conn
	select {
	case in = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("accept did not return")
	}
	defer in.Close()

	assert.Equal(t, "AA:AA:AA:AA:AA:AA", out.RemoteAddress())
	assert.Equal(t, "alpha", out.RemoteName())
	assert.Equal(t, "BB:BB:BB:BB:BB:BB", in.RemoteAddress())
	assert.Equal(t, "beta", in.RemoteName())

	go func() { _, _ = out.Write([]byte("hello")) }()
	buf := make([]byte, 16)
	nr, err := in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:nr]))

	// Closing one end gives EOF on the other.
	require.NoError(t, out.Close())
	_, err = in.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestListenerCloseUnblocksAccept(t *testing.T) {
	n := NewNetwork()
	a := n.NewAdapter("AA:AA:AA:AA:AA:AA", "alpha")

	l, err := a.Listen(serviceID)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, transport.ErrListenerClosed)
	case <-time.After(time.Second):
		t.Fatal("accept did not unblock")
	}

	// The service can be listened on again.
	l2, err := a.Listen(serviceID)
	require.NoError(t, err)
	l2.Close()
}

func TestListenTwice(t *testing.T) {
	a := NewNetwork().NewAdapter("AA:AA:AA:AA:AA:AA", "alpha")
	l, err := a.Listen(serviceID)
	require.NoError(t, err)
	defer l.Close()

	_, err = a.Listen(serviceID)
	assert.ErrorIs(t, err, transport.ErrServiceInUse)
}

func TestDialErrors(t *testing.T) {
	t.Run("UnknownBlocksUntilDeadline", func(t *testing.T) {
		n := NewNetwork()
		b := n.NewAdapter("BB:BB:BB:BB:BB:BB", "beta")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := b.Dial(ctx, "CC:CC:CC:CC:CC:CC", serviceID)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	})

	t.Run("UnknownFailFast", func(t *testing.T) {
		n := NewNetwork()
		n.SetFailFast(true)
		b := n.NewAdapter("BB:BB:BB:BB:BB:BB", "beta")

		_, err := b.Dial(context.Background(), "CC:CC:CC:CC:CC:CC", serviceID)
		assert.ErrorIs(t, err, transport.ErrUnreachable)
	})

	t.Run("NoListenerRefused", func(t *testing.T) {
		n := NewNetwork()
		n.NewAdapter("AA:AA:AA:AA:AA:AA", "alpha")
		b := n.NewAdapter("BB:BB:BB:BB:BB:BB", "beta")

		_, err := b.Dial(context.Background(), "AA:AA:AA:AA:AA:AA", serviceID)
		assert.ErrorIs(t, err, transport.ErrRefused)
	})

	t.Run("Removed", func(t *testing.T) {
		n := NewNetwork()
		n.SetFailFast(true)
		n.NewAdapter("AA:AA:AA:AA:AA:AA", "alpha")
		b := n.NewAdapter("BB:BB:BB:BB:BB:BB", "beta")
		n.Remove("aa:aa:aa:aa:aa:aa")

		_, err := b.Dial(context.Background(), "AA:AA:AA:AA:AA:AA", serviceID)
		assert.ErrorIs(t, err, transport.ErrUnreachable)
	})
}

func TestFailAccepts(t *testing.T) {
	a := NewNetwork().NewAdapter("AA:AA:AA:AA:AA:AA", "alpha")
	boom := errors.New("radio glitch")
	a.FailAccepts(2, boom)

	l, err := a.Listen(serviceID)
	require.NoError(t, err)

	_, err = l.Accept()
	assert.ErrorIs(t, err, boom)
	_, err = l.Accept()
	assert.ErrorIs(t, err, boom)

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		errCh <- err
	}()
	l.Close()
	assert.ErrorIs(t, <-errCh, transport.ErrListenerClosed)
}
