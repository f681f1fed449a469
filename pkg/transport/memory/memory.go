// Package memory provides an in-process transport for tests and simulation.
//
// A Network connects Adapters by address. Dial hands one end of a net.Pipe to
// the listening side's Accept, so both peers see a synchronous, unbuffered
// stream exactly like a real socket.
package memory

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nfchandover/handover-go/pkg/transport"
)

// Network is a set of adapters that can reach each other.
type Network struct {
	mu       sync.RWMutex
	adapters map[string]*Adapter
	failFast bool
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{adapters: make(map[string]*Adapter)}
}

// SetFailFast controls dialing an unknown address. By default Dial blocks
// until its context is done, modelling a peer out of range; with fail-fast it
// returns transport.ErrUnreachable immediately.
func (n *Network) SetFailFast(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failFast = v
}

// NewAdapter registers an adapter for address. The address is upper-cased.
func (n *Network) NewAdapter(address, name string) *Adapter {
	a := &Adapter{
		network:   n,
		address:   strings.ToUpper(address),
		name:      name,
		listeners: make(map[uuid.UUID]*listener),
	}
	n.mu.Lock()
	n.adapters[a.address] = a
	n.mu.Unlock()
	return a
}

// Remove takes an adapter off the network; later dials to it behave as for
// an unknown address.
func (n *Network) Remove(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.adapters, strings.ToUpper(address))
}

func (n *Network) lookup(address string) (*Adapter, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	a, ok := n.adapters[strings.ToUpper(address)]
	return a, ok
}

// Adapter is one endpoint on a Network.
type Adapter struct {
	network *Network
	address string
	name    string

	mu        sync.Mutex
	listeners map[uuid.UUID]*listener

	// Injected accept failures.
	acceptFailures int
	acceptErr      error
}

// Address returns the adapter address.
func (a *Adapter) Address() string { return a.address }

// Name returns the adapter device name.
func (a *Adapter) Name() string { return a.name }

// FailAccepts makes the next count Accept calls on any listener of this
// adapter return err.
func (a *Adapter) FailAccepts(count int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acceptFailures = count
	a.acceptErr = err
}

// Listen starts accepting connections for serviceID. Only one listener per
// service may exist at a time.
func (a *Adapter) Listen(serviceID uuid.UUID) (transport.Listener, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.listeners[serviceID]; exists {
		return nil, fmt.Errorf("%w: %s", transport.ErrServiceInUse, serviceID)
	}
	l := &listener{
		adapter:   a,
		serviceID: serviceID,
		conns:     make(chan transport.Conn),
		done:      make(chan struct{}),
	}
	a.listeners[serviceID] = l
	return l, nil
}

// Dial connects to the adapter at address.
func (a *Adapter) Dial(ctx context.Context, address string, serviceID uuid.UUID) (transport.Conn, error) {
	peer, ok := a.network.lookup(address)
	if !ok {
		a.network.mu.RLock()
		failFast := a.network.failFast
		a.network.mu.RUnlock()
		if failFast {
			return nil, fmt.Errorf("%w: %s", transport.ErrUnreachable, address)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	peer.mu.Lock()
	l, ok := peer.listeners[serviceID]
	peer.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no listener for %s on %s", transport.ErrRefused, serviceID, peer.address)
	}

	local, remote := net.Pipe()
	select {
	case l.conns <- transport.NewConn(remote, a.address, a.name):
		return transport.NewConn(local, peer.address, peer.name), nil
	case <-l.done:
		local.Close()
		remote.Close()
		return nil, fmt.Errorf("%w: listener closed", transport.ErrRefused)
	case <-ctx.Done():
		local.Close()
		remote.Close()
		return nil, ctx.Err()
	}
}

// takeAcceptFailure consumes one injected failure, if any.
func (a *Adapter) takeAcceptFailure() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.acceptFailures == 0 {
		return nil
	}
	a.acceptFailures--
	return a.acceptErr
}

type listener struct {
	adapter   *Adapter
	serviceID uuid.UUID
	conns     chan transport.Conn

	closeOnce sync.Once
	done      chan struct{}
}

func (l *listener) Accept() (transport.Conn, error) {
	select {
	case <-l.done:
		return nil, transport.ErrListenerClosed
	default:
	}
	if err := l.adapter.takeAcceptFailure(); err != nil {
		return nil, err
	}

	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, transport.ErrListenerClosed
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.adapter.mu.Lock()
		if l.adapter.listeners[l.serviceID] == l {
			delete(l.adapter.listeners, l.serviceID)
		}
		l.adapter.mu.Unlock()
	})
	return nil
}

var _ transport.Adapter = (*Adapter)(nil)
