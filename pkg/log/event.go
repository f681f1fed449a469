package log

import "time"

// MaxFrameData is the largest number of payload bytes kept in a FrameEvent.
// Larger frames are truncated and flagged.
const MaxFrameData = 4096

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the peer session (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether this side initiated the session.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer Bluetooth address.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// PeerName is the peer device name, once known.
	PeerName string `cbor:"8,keyasint,omitempty"`

	// SessionID is the handover session identifier from the handshake.
	SessionID string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Stream reads and writes
	Handshake   *HandshakeEvent   `cbor:"11,keyasint,omitempty"` // NFC handshake sent or seen
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates incoming data.
	DirectionIn Direction = 0
	// DirectionOut indicates outgoing data.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the RFCOMM byte stream.
	LayerTransport Layer = 0
	// LayerNFC is the tag exchange carrying the handshake.
	LayerNFC Layer = 1
	// LayerSession is the session manager.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerNFC:
		return "NFC"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryData indicates stream data.
	CategoryData Category = 0
	// CategoryHandshake indicates a handover handshake.
	CategoryHandshake Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryData:
		return "DATA"
	case CategoryHandshake:
		return "HANDSHAKE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory returns the category with the given name (case-sensitive,
// as printed by String).
func ParseCategory(s string) (Category, bool) {
	for _, c := range []Category{CategoryData, CategoryHandshake, CategoryState, CategoryError} {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// Role indicates which side of the handover the local endpoint is.
type Role uint8

const (
	// RoleUnknown is used before a session has a direction.
	RoleUnknown Role = 0
	// RoleAcceptor wrote the handshake and accepted the connection.
	RoleAcceptor Role = 1
	// RoleInitiator read the handshake and dialed.
	RoleInitiator Role = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleAcceptor:
		return "ACCEPTOR"
	case RoleInitiator:
		return "INITIATOR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures the bytes of a single read or write.
type FrameEvent struct {
	// Size is the number of bytes transferred.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated for large transfers).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent copies data into a FrameEvent, truncating at MaxFrameData.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameData {
		data = data[:MaxFrameData]
		fe.Truncated = true
	}
	fe.Data = append([]byte(nil), data...)
	return fe
}

// HandshakeEvent captures a handover handshake written to or read from a tag.
type HandshakeEvent struct {
	// AppLink is the URI record.
	AppLink string `cbor:"1,keyasint,omitempty"`

	// PeerAddress is the Bluetooth address carried by the handshake.
	PeerAddress string `cbor:"2,keyasint"`

	// SessionID is the session UUID carried by the handshake.
	SessionID string `cbor:"3,keyasint"`

	// Raw is the encoded NDEF message.
	Raw []byte `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures connection lifecycle events.
type StateChangeEvent struct {
	// OldState is the previous state.
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Epoch is the state machine epoch after the change.
	Epoch uint64 `cbor:"3,keyasint,omitempty"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
