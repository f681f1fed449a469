package handover

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
	"github.com/nfchandover/handover-go/pkg/session"
)

// ErrOwnHandshake is returned when a device reads the handshake it wrote.
var ErrOwnHandshake = errors.New("handshake was written by this device")

// TagWriter pushes an outbound NDEF message to the NFC front end.
type TagWriter interface {
	WriteHandover(ctx context.Context, data []byte) error
}

// TagWriterFunc adapts a function to TagWriter.
type TagWriterFunc func(ctx context.Context, data []byte) error

// WriteHandover calls f.
func (f TagWriterFunc) WriteHandover(ctx context.Context, data []byte) error { return f(ctx, data) }

// Passthrough receives tag messages that are not handovers.
type Passthrough interface {
	HandleMessage(data []byte)
}

// PassthroughFunc adapts a function to Passthrough.
type PassthroughFunc func(data []byte)

// HandleMessage calls f.
func (f PassthroughFunc) HandleMessage(data []byte) { f(data) }

// Session is the part of session.Manager the orchestrator drives.
type Session interface {
	State() connection.State
	LocalAddress() string
	Listen(opts ...session.StartOption) error
	Connect(address string, opts ...session.StartOption) error
	StopListening(sessionID string) error
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	// Logger is used for operational logging (optional).
	Logger *slog.Logger

	// ProtocolLogger records handshakes sent and seen (optional).
	ProtocolLogger log.Logger
}

// Orchestrator ties tag taps to the session manager: it publishes the local
// handshake and dials the peer named by a handshake read from a tag.
type Orchestrator struct {
	session     Session
	tags        TagWriter
	passthrough Passthrough
	logger      *slog.Logger
	plog        log.Logger

	mu        sync.Mutex
	sessionID uuid.UUID
}

// NewOrchestrator creates an Orchestrator. passthrough may be nil, in which
// case non-handover messages are dropped.
func NewOrchestrator(sess Session, tags TagWriter, passthrough Passthrough, config OrchestratorConfig) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if passthrough == nil {
		passthrough = PassthroughFunc(func([]byte) {})
	}
	return &Orchestrator{
		session:     sess,
		tags:        tags,
		passthrough: passthrough,
		logger:      logger.With("component", "handover"),
		plog:        log.Or(config.ProtocolLogger),
	}
}

// SessionID returns the session id of the last handshake sent or accepted,
// or uuid.Nil.
func (o *Orchestrator) SessionID() uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// BeginLocalHandover starts listening and publishes a handshake naming this
// device under a fresh session id.
func (o *Orchestrator) BeginLocalHandover(ctx context.Context, appLink string) (Handshake, error) {
	hs := Handshake{
		AppLink:     appLink,
		PeerAddress: o.session.LocalAddress(),
		SessionID:   uuid.New(),
	}
	data, err := Encode(hs.AppLink, hs.PeerAddress, hs.SessionID)
	if err != nil {
		return Handshake{}, fmt.Errorf("encode handshake: %w", err)
	}

	id := hs.SessionID.String()
	if err := o.session.Listen(session.WithSessionID(id)); err != nil {
		return Handshake{}, err
	}

	if err := o.tags.WriteHandover(ctx, data); err != nil {
		_ = o.session.StopListening(id)
		return Handshake{}, fmt.Errorf("write tag: %w", err)
	}

	o.mu.Lock()
	o.sessionID = hs.SessionID
	o.mu.Unlock()

	o.logger.Info("handshake published", "session", hs.SessionID, "address", hs.PeerAddress)
	o.logHandshake(hs, data, log.DirectionOut)
	return hs, nil
}

// OnHandoverDetected handles a message read from a tag. Messages that are
// not handovers go to the passthrough unchanged.
func (o *Orchestrator) OnHandoverDetected(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hs, ok := Decode(data)
	if !ok {
		o.logger.Debug("passing through tag message", "size", len(data))
		o.passthrough.HandleMessage(data)
		return nil
	}
	o.logHandshake(hs, data, log.DirectionIn)

	if hs.PeerAddress == o.session.LocalAddress() {
		return ErrOwnHandshake
	}
	switch o.session.State() {
	case connection.StateConnecting, connection.StateConnected:
		return session.ErrAlreadyConnecting
	}

	if err := o.session.Connect(hs.PeerAddress, session.WithSessionID(hs.SessionID.String())); err != nil {
		return err
	}

	o.mu.Lock()
	o.sessionID = hs.SessionID
	o.mu.Unlock()

	o.logger.Info("handshake accepted", "session", hs.SessionID, "peer", hs.PeerAddress)
	return nil
}

func (o *Orchestrator) logHandshake(hs Handshake, raw []byte, dir log.Direction) {
	ev := log.Event{
		Timestamp: time.Now(),
		Direction: dir,
		Layer:     log.LayerNFC,
		Category:  log.CategoryHandshake,
		SessionID: hs.SessionID.String(),
		Handshake: &log.HandshakeEvent{
			AppLink:     hs.AppLink,
			PeerAddress: hs.PeerAddress,
			SessionID:   hs.SessionID.String(),
			Raw:         append([]byte(nil), raw...),
		},
	}
	if dir == log.DirectionIn {
		ev.RemoteAddr = hs.PeerAddress
	}
	o.plog.Log(ev)
}

var _ Session = (*session.Manager)(nil)
