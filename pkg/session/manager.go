package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nfchandover/handover-go/pkg/connection"
	"github.com/nfchandover/handover-go/pkg/log"
	"github.com/nfchandover/handover-go/pkg/transport"
)

// Manager maintains at most one peer session over a transport.Adapter.
// It is safe for concurrent use.
type Manager struct {
	config  Config
	adapter transport.Adapter
	logger  *slog.Logger
	plog    log.Logger

	machine *connection.Machine
	queue   *eventQueue
	writeMu sync.Mutex
	wg      sync.WaitGroup

	closeOnce sync.Once

	// Guarded by the machine lock.
	closed      bool
	listener    transport.Listener
	conn        transport.Conn
	cancel      context.CancelFunc
	peerAddress string
	peerName    string
	connID      string
	role        log.Role
	sessionID   string
	reason      string
}

// NewManager creates a Manager in StateNone.
func NewManager(adapter transport.Adapter, config Config) *Manager {
	config = config.withDefaults()
	m := &Manager{
		config:  config,
		adapter: adapter,
		logger:  config.Logger.With("component", "session", "local", adapter.Address()),
		plog:    config.ProtocolLogger,
		queue:   newEventQueue(),
	}
	m.machine = connection.NewMachine(m.onTransition)
	return m
}

// Events returns the ordered notification stream. It is closed after Close
// once every pending event has been delivered, so a caller that stops
// reading must still drain it after Close to let the dispatcher exit.
func (m *Manager) Events() <-chan Event { return m.queue.out }

// State returns the current connection state.
func (m *Manager) State() connection.State { return m.machine.State() }

// LocalAddress returns the adapter's address.
func (m *Manager) LocalAddress() string { return m.adapter.Address() }

// PeerAddress returns the address of the current peer, or "" in StateNone.
func (m *Manager) PeerAddress() string {
	var addr string
	m.machine.Do(func(s connection.State, _ uint64) {
		if s != connection.StateNone {
			addr = m.peerAddress
		}
	})
	return addr
}

// PeerName returns the name of the connected peer, or "".
func (m *Manager) PeerName() string {
	var name string
	m.machine.Do(func(s connection.State, _ uint64) {
		if s == connection.StateConnected {
			name = m.peerName
		}
	})
	return name
}

// ConnectionID returns the protocol log ID of the current session, or "".
func (m *Manager) ConnectionID() string {
	var id string
	m.machine.Do(func(s connection.State, _ uint64) {
		if s != connection.StateNone {
			id = m.connID
		}
	})
	return id
}

// StartOptions are the per-session settings of Listen and Connect.
type StartOptions struct {
	// SessionID tags every protocol log event of the session, starting with
	// its first state change.
	SessionID string
}

// StartOption configures a session started by Listen or Connect.
type StartOption func(*StartOptions)

// WithSessionID tags the session with a handover session id.
func WithSessionID(id string) StartOption {
	return func(o *StartOptions) { o.SessionID = id }
}

func startOptions(opts []StartOption) StartOptions {
	var o StartOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SessionID returns the handover session id of the current session, or "".
func (m *Manager) SessionID() string {
	var id string
	m.machine.Do(func(s connection.State, _ uint64) {
		if s != connection.StateNone {
			id = m.sessionID
		}
	})
	return id
}

// Listen registers the service and starts accepting. It requires StateNone.
func (m *Manager) Listen(opts ...StartOption) error {
	o := startOptions(opts)
	var (
		ln  transport.Listener
		ctx context.Context
	)
	epoch, err := m.machine.Transition(connection.StateListening, func(connection.State) error {
		if m.closed {
			return ErrClosed
		}
		l, err := m.adapter.Listen(m.config.ServiceID)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		ln = l
		ctx = m.beginLocked("", log.RoleAcceptor, "listen", o.SessionID)
		m.listener = l
		m.wg.Add(1)
		return nil
	})
	if err != nil {
		return m.startErr(err)
	}

	go m.acceptLoop(ctx, epoch, ln)
	return nil
}

// Connect starts dialing address. It requires StateNone or StateListening;
// a listener is closed in favour of the outbound session. The result is
// reported asynchronously through Events.
func (m *Manager) Connect(address string, opts ...StartOption) error {
	o := startOptions(opts)
	var ctx context.Context
	epoch, err := m.machine.Transition(connection.StateConnecting, func(connection.State) error {
		if m.closed {
			return ErrClosed
		}
		m.releaseLocked()
		ctx = m.beginLocked(address, log.RoleInitiator, "connect", o.SessionID)
		m.wg.Add(1)
		return nil
	})
	if err != nil {
		return m.startErr(err)
	}

	go m.connectLoop(ctx, epoch, address)
	return nil
}

// Stop ends the current session, whatever its state. It is a no-op in
// StateNone.
func (m *Manager) Stop() error {
	_, err := m.machine.Transition(connection.StateNone, func(connection.State) error {
		m.reason = "stop"
		m.releaseLocked()
		return nil
	})
	if errors.Is(err, connection.ErrInvalidTransition) {
		return nil
	}
	return err
}

// StopListening ends the session tagged sessionID if it is still listening.
// A session that has moved on to Connecting or Connected is left alone.
func (m *Manager) StopListening(sessionID string) error {
	_, err := m.machine.Transition(connection.StateNone, func(from connection.State) error {
		if from != connection.StateListening || m.sessionID != sessionID {
			return errNotListening
		}
		m.reason = "stop listening"
		m.releaseLocked()
		return nil
	})
	if errors.Is(err, errNotListening) || errors.Is(err, connection.ErrInvalidTransition) {
		return nil
	}
	return err
}

// Write sends b to the connected peer. Concurrent writers are serialised.
func (m *Manager) Write(b []byte) error {
	var (
		c     transport.Conn
		epoch uint64
	)
	m.machine.Do(func(s connection.State, e uint64) {
		if s == connection.StateConnected {
			c, epoch = m.conn, e
		}
	})
	if c == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	_, err := c.Write(b)
	m.writeMu.Unlock()

	if err != nil {
		ioErr := &IOError{Op: "write", Err: err}
		m.fail(epoch, ioErr)
		return fmt.Errorf("%w: %w", ErrPeerDisconnected, ioErr)
	}

	data := append([]byte(nil), b...)
	m.emitInSession(epoch, Event{Type: EventWrite, Data: data}, log.DirectionOut)
	return nil
}

// Close ends the session, waits for workers and closes the Events channel.
// The Manager cannot be used afterwards.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.machine.Do(func(connection.State, uint64) { m.closed = true })
		_ = m.Stop()
		m.wg.Wait()
		m.queue.close()
	})
	return nil
}

// beginLocked resets the per-session fields. Runs under the machine lock.
func (m *Manager) beginLocked(peer string, role log.Role, reason, sessionID string) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.sessionID = sessionID
	m.peerAddress = peer
	m.peerName = ""
	m.connID = uuid.NewString()
	m.role = role
	m.reason = reason
	return ctx
}

// releaseLocked closes whatever the session holds. Runs under the machine
// lock, inside the transition that leaves the session.
func (m *Manager) releaseLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.listener != nil {
		_ = m.listener.Close()
		m.listener = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func (m *Manager) startErr(err error) error {
	if errors.Is(err, connection.ErrInvalidTransition) {
		return fmt.Errorf("%w: %w", ErrAlreadyConnecting, err)
	}
	return err
}

func (m *Manager) acceptLoop(ctx context.Context, epoch uint64, ln transport.Listener) {
	defer m.wg.Done()

	backoff := connection.NewBackoffWithConfig(m.config.AcceptBackoff)
	failures := 0

	for {
		c, err := ln.Accept()
		if err != nil {
			if m.superseded(ctx, epoch) {
				return
			}
			failures++
			m.logger.Warn("accept failed", "attempt", failures, "error", err)
			m.logError(log.LayerTransport, "accept", fmt.Errorf("%w: %w", ErrAcceptFailed, err))

			if failures >= m.config.AcceptRetries {
				terr := m.machine.TransitionInEpoch(epoch, connection.StateNone, func(connection.State) error {
					m.reason = "accept exhausted"
					m.releaseLocked()
					return nil
				})
				if terr == nil {
					m.emitError(epoch, log.LayerSession, "accept", fmt.Errorf("%w after %d failures: %w", ErrAcceptExhausted, failures, err))
				}
				return
			}

			select {
			case <-time.After(backoff.Next()):
				continue
			case <-ctx.Done():
				return
			}
		}

		err = m.machine.TransitionInEpoch(epoch, connection.StateConnected, func(connection.State) error {
			m.reason = "accepted"
			m.conn = c
			m.peerAddress = c.RemoteAddress()
			m.peerName = c.RemoteName()
			// One peer per session.
			if m.listener != nil {
				_ = m.listener.Close()
				m.listener = nil
			}
			m.wg.Add(1)
			return nil
		})
		if err != nil {
			m.logger.Debug("dropping accepted conn", "remote", c.RemoteAddress(), "error", err)
			_ = c.Close()
			return
		}

		m.logger.Info("peer connected", "peer", c.RemoteAddress(), "name", c.RemoteName())
		go m.readLoop(epoch, c)
		return
	}
}

func (m *Manager) connectLoop(ctx context.Context, epoch uint64, address string) {
	defer m.wg.Done()

	dialCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	c, err := m.adapter.Dial(dialCtx, address, m.config.ServiceID)
	cancel()

	if err != nil {
		cerr := &ConnectError{Address: address, Reason: classifyDial(ctx, err), Err: err}
		terr := m.machine.TransitionInEpoch(epoch, connection.StateNone, func(connection.State) error {
			m.reason = "connect " + cerr.Reason.String()
			m.releaseLocked()
			return nil
		})
		if terr == nil {
			m.logger.Warn("connect failed", "peer", address, "reason", cerr.Reason, "error", err)
			m.emitError(epoch, log.LayerTransport, "connect", cerr)
		}
		return
	}

	err = m.machine.TransitionInEpoch(epoch, connection.StateConnected, func(connection.State) error {
		m.reason = "connected"
		m.conn = c
		if addr := c.RemoteAddress(); addr != "" {
			m.peerAddress = addr
		}
		m.peerName = c.RemoteName()
		m.wg.Add(1)
		return nil
	})
	if err != nil {
		m.logger.Debug("dropping dialed conn", "peer", address, "error", err)
		_ = c.Close()
		return
	}

	m.logger.Info("peer connected", "peer", c.RemoteAddress(), "name", c.RemoteName())
	go m.readLoop(epoch, c)
}

func (m *Manager) readLoop(epoch uint64, c transport.Conn) {
	defer m.wg.Done()

	buf := make([]byte, m.config.ReadBufferSize)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			m.emitInSession(epoch, Event{Type: EventRead, Data: data}, log.DirectionIn)
		}
		if err != nil {
			m.fail(epoch, &IOError{Op: "read", Err: err})
			return
		}
	}
}

// fail tears down a connected session after an I/O error. Only the first
// failure of a session commits and reports.
func (m *Manager) fail(epoch uint64, ioErr *IOError) {
	err := m.machine.TransitionInEpoch(epoch, connection.StateNone, func(connection.State) error {
		m.reason = "peer disconnected"
		m.releaseLocked()
		return nil
	})
	if err != nil {
		return
	}
	m.logger.Info("peer disconnected", "op", ioErr.Op, "error", ioErr.Err)
	m.emitError(epoch, log.LayerTransport, ioErr.Op, fmt.Errorf("%w: %w", ErrPeerDisconnected, ioErr))
}

// superseded reports whether the worker of epoch has been torn down.
func (m *Manager) superseded(ctx context.Context, epoch uint64) bool {
	if ctx.Err() != nil {
		return true
	}
	state, current := m.machine.Snapshot()
	return current != epoch || state != connection.StateListening
}

// onTransition is the machine notifier; it runs under the machine lock.
func (m *Manager) onTransition(from, to connection.State, epoch uint64) {
	m.queue.push(Event{
		Type:        EventStateChange,
		From:        from,
		To:          to,
		Epoch:       epoch,
		PeerAddress: m.peerAddress,
		PeerName:    m.peerName,
		SessionID:   m.sessionID,
	})

	m.logger.Debug("state change", "from", from, "to", to, "epoch", epoch, "reason", m.reason)
	ev := m.baseEventLocked(log.LayerSession, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		OldState: from.String(),
		NewState: to.String(),
		Epoch:    epoch,
		Reason:   m.reason,
	}
	m.plog.Log(ev)
}

// emitInSession queues a data event unless the session of epoch has already
// ended, keeping reads and writes ordered before its None transition.
func (m *Manager) emitInSession(epoch uint64, ev Event, dir log.Direction) {
	m.machine.Do(func(s connection.State, e uint64) {
		if s != connection.StateConnected || e != epoch {
			return
		}
		ev.Epoch = epoch
		ev.PeerAddress = m.peerAddress
		ev.PeerName = m.peerName
		ev.SessionID = m.sessionID
		m.queue.push(ev)

		pe := m.baseEventLocked(log.LayerTransport, log.CategoryData)
		pe.Direction = dir
		pe.Frame = log.NewFrameEvent(ev.Data)
		m.plog.Log(pe)
	})
}

func (m *Manager) emitError(epoch uint64, layer log.Layer, op string, err error) {
	m.machine.Do(func(connection.State, uint64) {
		m.queue.push(Event{
			Type:        EventError,
			Epoch:       epoch,
			PeerAddress: m.peerAddress,
			PeerName:    m.peerName,
			SessionID:   m.sessionID,
			Err:         err,
		})

		pe := m.baseEventLocked(layer, log.CategoryError)
		pe.Error = &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: op}
		m.plog.Log(pe)
	})
}

// logError records err in the protocol log only; the caller is not told.
func (m *Manager) logError(layer log.Layer, op string, err error) {
	m.machine.Do(func(connection.State, uint64) {
		pe := m.baseEventLocked(layer, log.CategoryError)
		pe.Error = &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: op}
		m.plog.Log(pe)
	})
}

func (m *Manager) baseEventLocked(layer log.Layer, category log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.connID,
		Layer:        layer,
		Category:     category,
		LocalRole:    m.role,
		RemoteAddr:   m.peerAddress,
		PeerName:     m.peerName,
		SessionID:    m.sessionID,
	}
}
