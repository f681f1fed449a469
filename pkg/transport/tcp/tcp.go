// Package tcp emulates RFCOMM over TCP for hosts without Bluetooth.
//
// A listening adapter opens a TCP port per service UUID and, when an
// Advertiser is configured, announces it over mDNS keyed by the adapter's
// Bluetooth-style address. A dialing adapter resolves the address it read
// from the tag through a discovery.Resolver, connects, and exchanges one
// length-prefixed CBOR hello frame in each direction to learn the peer's
// address and name and to check the service UUID. After the hello the
// stream carries raw session bytes only.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nfchandover/handover-go/pkg/discovery"
	"github.com/nfchandover/handover-go/pkg/transport"
	"github.com/nfchandover/handover-go/pkg/version"
)

// DefaultHelloTimeout bounds the hello exchange on accepted connections.
const DefaultHelloTimeout = 5 * time.Second

// ErrHelloRejected is returned by Dial when the listener rejects the hello.
var ErrHelloRejected = errors.New("hello rejected")

// Config configures an Adapter.
type Config struct {
	// Address is the local Bluetooth-style address (XX:XX:XX:XX:XX:XX).
	Address string

	// Name is the local device name sent to peers.
	Name string

	// ListenHost is the host part to bind listeners to. Empty means all
	// interfaces.
	ListenHost string

	// Port is the TCP port for listeners. 0 picks an ephemeral port.
	Port int

	// Resolver maps peer addresses to endpoints for Dial. Required for Dial.
	Resolver discovery.Resolver

	// Advertiser announces listeners (optional).
	Advertiser discovery.Advertiser

	// HelloTimeout bounds the hello exchange on accepted connections.
	HelloTimeout time.Duration

	// Logger for operational logging (optional).
	Logger *slog.Logger
}

// Adapter implements transport.Adapter over TCP.
type Adapter struct {
	config Config
	logger *slog.Logger
}

// New creates a TCP adapter.
func New(config Config) (*Adapter, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("tcp adapter: address is required")
	}
	config.Address = strings.ToUpper(config.Address)
	if config.HelloTimeout <= 0 {
		config.HelloTimeout = DefaultHelloTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{config: config, logger: logger.With("component", "tcp-adapter")}, nil
}

// Address returns the local address.
func (a *Adapter) Address() string { return a.config.Address }

// Listen opens a TCP listener for serviceID and advertises it.
func (a *Adapter) Listen(serviceID uuid.UUID) (transport.Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(a.config.ListenHost, fmt.Sprint(a.config.Port)))
	if err != nil {
		return nil, fmt.Errorf("tcp listen: %w", err)
	}

	l := &listener{
		adapter:   a,
		ln:        ln,
		serviceID: serviceID,
	}

	if a.config.Advertiser != nil {
		port := ln.Addr().(*net.TCPAddr).Port
		info := &discovery.PeerInfo{
			Address:   a.config.Address,
			ServiceID: serviceID,
			Name:      a.config.Name,
			Port:      uint16(port),
		}
		if err := a.config.Advertiser.Advertise(context.Background(), info); err != nil {
			ln.Close()
			return nil, fmt.Errorf("advertise listener: %w", err)
		}
		l.advertised = true
	}

	a.logger.Debug("listening", "addr", ln.Addr().String(), "service", serviceID)
	return l, nil
}

// Dial resolves address and connects to it.
func (a *Adapter) Dial(ctx context.Context, address string, serviceID uuid.UUID) (transport.Conn, error) {
	if a.config.Resolver == nil {
		return nil, fmt.Errorf("%w: no resolver configured", transport.ErrUnreachable)
	}

	svc, err := a.config.Resolver.Resolve(ctx, address, serviceID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", transport.ErrUnreachable, err)
	}
	endpoint, err := svc.Endpoint()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrUnreachable, err)
	}

	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %v", transport.ErrRefused, err)
		}
		return nil, fmt.Errorf("%w: %v", transport.ErrUnreachable, err)
	}

	// Abort the hello when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = c.SetDeadline(time.Now()) })
	defer stop()

	if err := writeMsg(c, hello{
		Address:   a.config.Address,
		Name:      a.config.Name,
		ServiceID: serviceID.String(),
		Version:   version.Current,
	}); err != nil {
		c.Close()
		return nil, a.helloErr(ctx, err)
	}
	var reply helloReply
	if err := readMsg(c, &reply); err != nil {
		c.Close()
		return nil, a.helloErr(ctx, err)
	}
	if !stop() {
		c.Close()
		return nil, ctx.Err()
	}
	if !reply.Accepted {
		c.Close()
		return nil, fmt.Errorf("%w: %w: %s", transport.ErrRefused, ErrHelloRejected, reply.Reason)
	}

	remoteAddr := reply.Address
	if remoteAddr == "" {
		remoteAddr = strings.ToUpper(address)
	}
	return transport.NewConn(c, remoteAddr, reply.Name), nil
}

func (a *Adapter) helloErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("hello: %w", err)
}

type listener struct {
	adapter    *Adapter
	ln         net.Listener
	serviceID  uuid.UUID
	advertised bool

	mu     sync.Mutex
	closed bool
}

// Accept returns the next connection whose hello names this listener's
// service. Connections with a bad hello are rejected and skipped.
func (l *listener) Accept() (transport.Conn, error) {
	for {
		c, err := l.ln.Accept()
		if err != nil {
			if l.isClosed() {
				return nil, transport.ErrListenerClosed
			}
			return nil, fmt.Errorf("tcp accept: %w", err)
		}

		conn, err := l.serverHello(c)
		if err != nil {
			l.adapter.logger.Debug("rejected connection", "remote", c.RemoteAddr().String(), "error", err)
			c.Close()
			if l.isClosed() {
				return nil, transport.ErrListenerClosed
			}
			continue
		}
		return conn, nil
	}
}

func (l *listener) serverHello(c net.Conn) (transport.Conn, error) {
	if err := c.SetDeadline(time.Now().Add(l.adapter.config.HelloTimeout)); err != nil {
		return nil, err
	}

	var h hello
	if err := readMsg(c, &h); err != nil {
		return nil, err
	}

	if err := version.CheckPeer(h.Version); err != nil {
		_ = writeMsg(c, helloReply{Reason: err.Error()})
		return nil, err
	}

	id, err := uuid.Parse(h.ServiceID)
	if err != nil || id != l.serviceID {
		_ = writeMsg(c, helloReply{Reason: "unknown service " + h.ServiceID})
		return nil, fmt.Errorf("service mismatch: %q", h.ServiceID)
	}

	reply := helloReply{Accepted: true, Address: l.adapter.config.Address, Name: l.adapter.config.Name}
	if err := writeMsg(c, reply); err != nil {
		return nil, err
	}
	if err := c.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return transport.NewConn(c, strings.ToUpper(h.Address), h.Name), nil
}

func (l *listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops the listener and withdraws its advertisement.
func (l *listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if l.advertised {
		_ = l.adapter.config.Advertiser.StopAdvertising(l.adapter.config.Address)
	}
	return l.ln.Close()
}

// Addr returns the bound TCP address.
func (l *listener) Addr() net.Addr { return l.ln.Addr() }

var _ transport.Adapter = (*Adapter)(nil)
