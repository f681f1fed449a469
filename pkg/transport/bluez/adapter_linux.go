//go:build linux

package bluez

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nfchandover/handover-go/pkg/transport"
)

var pathCounter uint64

// Config configures an Adapter.
type Config struct {
	// Adapter is the controller name, e.g. "hci0".
	Adapter string

	// ProfileName is announced in the SDP record of listeners.
	ProfileName string

	// Logger for operational logging (optional).
	Logger *slog.Logger
}

// Adapter implements transport.Adapter on a BlueZ controller.
type Adapter struct {
	bus     *dbus.Conn
	path    dbus.ObjectPath
	address string
	config  Config
	logger  *slog.Logger

	mu      sync.Mutex
	closed  bool
	clients map[uuid.UUID]*profile
}

// Open connects to the system bus and binds to the configured controller.
func Open(config Config) (*Adapter, error) {
	if config.Adapter == "" {
		config.Adapter = DefaultAdapter
	}
	if config.ProfileName == "" {
		config.ProfileName = "NFC Handover"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}

	a := &Adapter{
		bus:     bus,
		path:    adapterPath(config.Adapter),
		config:  config,
		logger:  logger.With("component", "bluez", "adapter", config.Adapter),
		clients: make(map[uuid.UUID]*profile),
	}

	v, err := bus.Object(bluezService, a.path).GetProperty(adapterIface + ".Address")
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrAdapterNotFound, config.Adapter, err)
	}
	addr, _ := v.Value().(string)
	a.address = strings.ToUpper(addr)

	return a, nil
}

// Address returns the controller's Bluetooth address.
func (a *Adapter) Address() string { return a.address }

// Listen registers a server profile for serviceID.
func (a *Adapter) Listen(serviceID uuid.UUID) (transport.Listener, error) {
	p, err := a.registerProfile(serviceID, "server", map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant(a.config.ProfileName),
		"Role":                  dbus.MakeVariant("server"),
		"RequireAuthentication": dbus.MakeVariant(false),
		"RequireAuthorization":  dbus.MakeVariant(false),
	})
	if err != nil {
		return nil, err
	}
	return &listener{adapter: a, profile: p}, nil
}

// Dial asks BlueZ to connect the client profile for serviceID to address and
// waits for the resulting socket.
func (a *Adapter) Dial(ctx context.Context, address string, serviceID uuid.UUID) (transport.Conn, error) {
	p, err := a.clientProfile(serviceID)
	if err != nil {
		return nil, err
	}

	dev := devicePath(a.path, address)
	wait := p.expect(dev)
	defer p.forget(dev)

	call := a.bus.Object(bluezService, dev).CallWithContext(ctx, deviceIface+".ConnectProfile", 0, serviceID.String())
	if call.Err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyError("connect profile", call.Err)
	}

	select {
	case res := <-wait:
		return a.wrap(res)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unregisters client profiles and closes the bus connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	clients := a.clients
	a.clients = nil
	a.mu.Unlock()

	for _, p := range clients {
		a.unregisterProfile(p)
	}
	return a.bus.Close()
}

func (a *Adapter) clientProfile(serviceID uuid.UUID) (*profile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("bluez: adapter closed")
	}
	if p, ok := a.clients[serviceID]; ok {
		return p, nil
	}
	p, err := a.registerProfile(serviceID, "client", map[string]dbus.Variant{
		"Role": dbus.MakeVariant("client"),
	})
	if err != nil {
		return nil, err
	}
	a.clients[serviceID] = p
	return p, nil
}

func (a *Adapter) registerProfile(serviceID uuid.UUID, role string, opts map[string]dbus.Variant) (*profile, error) {
	id := atomic.AddUint64(&pathCounter, 1)
	p := &profile{
		path:    dbus.ObjectPath("/org/nfchandover/profile/" + role + strconv.FormatUint(id, 10)),
		waiters: make(map[dbus.ObjectPath]chan connResult),
		logger:  a.logger,
	}
	// Client profiles only deliver to waiting dialers.
	if role == "server" {
		p.accepts = make(chan connResult, 1)
	}
	if err := a.bus.Export(p, p.path, profileInterfaceName); err != nil {
		return nil, fmt.Errorf("bluez: export %s profile: %w", role, err)
	}

	pm := a.bus.Object(bluezService, bluezRoot)
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, p.path, serviceID.String(), opts); call.Err != nil {
		_ = a.bus.Export(nil, p.path, profileInterfaceName)
		return nil, fmt.Errorf("bluez: RegisterProfile(%s): %w", role, call.Err)
	}
	a.logger.Debug("profile registered", "role", role, "service", serviceID, "path", p.path)
	return p, nil
}

func (a *Adapter) unregisterProfile(p *profile) {
	pm := a.bus.Object(bluezService, bluezRoot)
	_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, p.path).Err
	_ = a.bus.Export(nil, p.path, profileInterfaceName)
	p.drain()
}

// wrap turns a delivered socket into a transport.Conn.
func (a *Adapter) wrap(res connResult) (transport.Conn, error) {
	if err := unix.SetNonblock(res.fd, true); err != nil {
		unix.Close(res.fd)
		return nil, fmt.Errorf("bluez: set nonblock: %w", err)
	}
	address := addressFromPath(res.device)
	f := os.NewFile(uintptr(res.fd), "rfcomm:"+address)
	return transport.NewConn(f, address, a.deviceName(res.device)), nil
}

// deviceName reads Device1.Alias, falling back to Name.
func (a *Adapter) deviceName(dev dbus.ObjectPath) string {
	obj := a.bus.Object(bluezService, dev)
	for _, prop := range []string{"Alias", "Name"} {
		v, err := obj.GetProperty(deviceIface + "." + prop)
		if err != nil {
			continue
		}
		if s, ok := v.Value().(string); ok && s != "" {
			return s
		}
	}
	return ""
}

type listener struct {
	adapter *Adapter
	profile *profile

	closeOnce sync.Once
}

func (l *listener) Accept() (transport.Conn, error) {
	select {
	case res, ok := <-l.profile.accepts:
		if !ok {
			return nil, transport.ErrListenerClosed
		}
		return l.adapter.wrap(res)
	case <-l.profile.closed():
		return nil, transport.ErrListenerClosed
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		l.adapter.unregisterProfile(l.profile)
	})
	return nil
}

type connResult struct {
	fd     int
	device dbus.ObjectPath
}

// profile implements org.bluez.Profile1.
type profile struct {
	path   dbus.ObjectPath
	logger *slog.Logger

	mu       sync.Mutex
	accepts  chan connResult
	waiters  map[dbus.ObjectPath]chan connResult
	done     chan struct{}
	isClosed bool
}

func (p *profile) closed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		p.done = make(chan struct{})
		if p.isClosed {
			close(p.done)
		}
	}
	return p.done
}

func (p *profile) expect(dev dbus.ObjectPath) <-chan connResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan connResult, 1)
	p.waiters[dev] = ch
	return ch
}

func (p *profile) forget(dev dbus.ObjectPath) {
	p.mu.Lock()
	ch := p.waiters[dev]
	delete(p.waiters, dev)
	p.mu.Unlock()

	if ch == nil {
		return
	}
	select {
	case res := <-ch:
		unix.Close(res.fd)
	default:
	}
}

// drain marks the profile closed and releases undelivered sockets.
func (p *profile) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return
	}
	p.isClosed = true
	if p.done != nil {
		close(p.done)
	}
	for {
		select {
		case res := <-p.accepts:
			unix.Close(res.fd)
		default:
			return
		}
	}
}

// Release is called by BlueZ when the profile is being released.
func (p *profile) Release() *dbus.Error { return nil }

// Cancel is called when a pending request is cancelled.
func (p *profile) Cancel() *dbus.Error { return nil }

// RequestDisconnection is ignored; the owner of the conn closes it.
func (p *profile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection delivers a connected RFCOMM socket. A dialer waiting on the
// device gets it first; otherwise it is queued for Accept. Sockets nobody
// can take are closed and rejected.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	res := connResult{fd: int(fd), device: dev}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isClosed {
		if ch, ok := p.waiters[dev]; ok {
			select {
			case ch <- res:
				return nil
			default:
			}
		}
		select {
		case p.accepts <- res:
			return nil
		default:
		}
	}

	p.logger.Debug("rejecting connection", "device", dev)
	unix.Close(res.fd)
	return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no receiver"}}
}

var _ transport.Adapter = (*Adapter)(nil)
