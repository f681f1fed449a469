package tcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nfchandover/handover-go/pkg/discovery"
	"github.com/nfchandover/handover-go/pkg/transport"
)

var serviceID = uuid.MustParse("8ce255c0-200a-11e0-ac64-0800200c9a66")

type mockAdvertiser struct {
	mock.Mock
}

func (m *mockAdvertiser) Advertise(ctx context.Context, info *discovery.PeerInfo) error {
	return m.Called(ctx, info).Error(0)
}

func (m *mockAdvertiser) StopAdvertising(address string) error {
	return m.Called(address).Error(0)
}

func (m *mockAdvertiser) StopAll() { m.Called() }

func newPair(t *testing.T) (acceptor, initiator *Adapter, resolver *discovery.StaticResolver) {
	t.Helper()
	resolver = discovery.NewStaticResolver()

	var err error
	acceptor, err = New(Config{Address: "aa:aa:aa:aa:aa:aa", Name: "alpha", ListenHost: "127.0.0.1"})
	require.NoError(t, err)
	initiator, err = New(Config{Address: "BB:BB:BB:BB:BB:BB", Name: "beta", Resolver: resolver})
	require.NoError(t, err)
	return acceptor, initiator, resolver
}

func listenPort(t *testing.T, l transport.Listener) uint16 {
	t.Helper()
	return uint16(l.(*listener).Addr().(*net.TCPAddr).Port)
}

func TestDialAccept(t *testing.T) {
	acceptor, initiator, resolver := newPair(t)

	l, err := acceptor.Listen(serviceID)
	require.NoError(t, err)
	defer l.Close()
	resolver.Add(acceptor.Address(), serviceID, "127.0.0.1", listenPort(t, l))

	accepted := make(chan transport.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := initiator.Dial(ctx, "aa:aa:aa:aa:aa:aa", serviceID)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, "AA:AA:AA:AA:AA:AA", out.RemoteAddress())
	assert.Equal(t, "alpha", out.RemoteName())

	var in transport.Conn
	select {
	case in = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not return")
	}
	defer in.Close()
	assert.Equal(t, "BB:BB:BB:BB:BB:BB", in.RemoteAddress())
	assert.Equal(t, "beta", in.RemoteName())

	// Session bytes flow unframed after the hello.
	_, err = out.Write([]byte("raw bytes"))
	require.NoError(t, err)
	buf := make([]byte, 9)
	_, err = io.ReadFull(in, buf)
	require.NoError(t, err)
	assert.Equal(t, "raw bytes", string(buf))
}

func TestDialServiceMismatchRejected(t *testing.T) {
	acceptor, initiator, resolver := newPair(t)
	other := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	l, err := acceptor.Listen(serviceID)
	require.NoError(t, err)
	defer l.Close()
	resolver.Add(acceptor.Address(), other, "127.0.0.1", listenPort(t, l))

	go func() { _, _ = l.Accept() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = initiator.Dial(ctx, acceptor.Address(), other)
	assert.ErrorIs(t, err, transport.ErrRefused)
	assert.ErrorIs(t, err, ErrHelloRejected)
}

func TestListenerRejectsIncompatibleVersion(t *testing.T) {
	acceptor, _, _ := newPair(t)
	l, err := acceptor.Listen(serviceID)
	require.NoError(t, err)
	defer l.Close()

	go func() { _, _ = l.Accept() }()

	c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", fmt.Sprint(listenPort(t, l))))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetDeadline(time.Now().Add(2*time.Second)))

	require.NoError(t, writeMsg(c, hello{Address: "CC:CC:CC:CC:CC:CC", ServiceID: serviceID.String(), Version: "2.0"}))
	var reply helloReply
	require.NoError(t, readMsg(c, &reply))
	assert.False(t, reply.Accepted)
	assert.Contains(t, reply.Reason, "incompatible version")
}

func TestDialUnresolved(t *testing.T) {
	_, initiator, _ := newPair(t)

	_, err := initiator.Dial(context.Background(), "CC:CC:CC:CC:CC:CC", serviceID)
	assert.ErrorIs(t, err, transport.ErrUnreachable)
}

func TestDialRefused(t *testing.T) {
	_, initiator, resolver := newPair(t)

	// Grab a free port and release it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()
	resolver.Add("CC:CC:CC:CC:CC:CC", serviceID, "127.0.0.1", port)

	_, err = initiator.Dial(context.Background(), "CC:CC:CC:CC:CC:CC", serviceID)
	assert.ErrorIs(t, err, transport.ErrRefused)
}

func TestListenerCloseUnblocksAccept(t *testing.T) {
	acceptor, _, _ := newPair(t)
	l, err := acceptor.Listen(serviceID)
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
}

func TestListenAdvertises(t *testing.T) {
	adv := &mockAdvertiser{}
	adv.On("Advertise", mock.Anything, mock.MatchedBy(func(info *discovery.PeerInfo) bool {
		return info.Address == "AA:AA:AA:AA:AA:AA" && info.ServiceID == serviceID && info.Port != 0 && info.Name == "alpha"
	})).Return(nil).Once()
	adv.On("StopAdvertising", "AA:AA:AA:AA:AA:AA").Return(nil).Once()

	a, err := New(Config{Address: "aa:aa:aa:aa:aa:aa", Name: "alpha", ListenHost: "127.0.0.1", Advertiser: adv})
	require.NoError(t, err)

	l, err := a.Listen(serviceID)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	adv.AssertExpectations(t)
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMsg(&buf, hello{Address: "AA:AA:AA:AA:AA:AA", ServiceID: serviceID.String()}))
	assert.Equal(t, byte(0), buf.Bytes()[0])

	var h hello
	require.NoError(t, readMsg(&buf, &h))
	assert.Equal(t, "AA:AA:AA:AA:AA:AA", h.Address)

	assert.ErrorIs(t, writeFrame(&buf, nil), ErrMessageEmpty)
	assert.ErrorIs(t, writeFrame(&buf, make([]byte, MaxHelloSize+1)), ErrMessageTooLarge)

	_, err := readFrame(bytes.NewReader([]byte{0, 0, 0, 5, 1}))
	assert.ErrorIs(t, err, ErrFrameTruncated)
	_, err = readFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrMessageEmpty)
	_, err = readFrame(bytes.NewReader([]byte{0xFF, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	_, err = readFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}
