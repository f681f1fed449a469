package handover

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nfchandover/handover-go/pkg/ndef"
)

// Marker is the text of the second handshake record. Its presence together
// with the record count identifies a handover message.
const Marker = "NfcToBluetoothHandoverRequest"

// RecordCount is the fixed number of records in a handshake message.
const RecordCount = 4

// TextLanguage is the language code written into handshake text records.
const TextLanguage = "en"

// Encoding errors.
var (
	ErrInvalidAddress = errors.New("invalid bluetooth address")
	ErrEmptyAppLink   = errors.New("app link is required")
	ErrNilSessionID   = errors.New("session id is required")
)

// Handshake is the decoded content of a handover message.
type Handshake struct {
	// AppLink is the application link carried in the URI record.
	AppLink string

	// PeerAddress is the Bluetooth address of the device that wrote the tag,
	// in canonical XX:XX:XX:XX:XX:XX form.
	PeerAddress string

	// SessionID identifies the handover attempt on both peers.
	SessionID uuid.UUID
}

// Encode builds the handshake message for the given fields.
func Encode(appLink, peerAddress string, sessionID uuid.UUID) ([]byte, error) {
	msg, err := EncodeMessage(appLink, peerAddress, sessionID)
	if err != nil {
		return nil, err
	}
	return msg.Marshal()
}

// EncodeMessage builds the handshake as an NDEF message.
func EncodeMessage(appLink, peerAddress string, sessionID uuid.UUID) (*ndef.Message, error) {
	if appLink == "" {
		return nil, ErrEmptyAppLink
	}
	addr, err := ParseAddress(peerAddress)
	if err != nil {
		return nil, err
	}
	if sessionID == uuid.Nil {
		return nil, ErrNilSessionID
	}

	return ndef.NewMessage(
		ndef.NewURIRecord(appLink),
		ndef.NewTextRecord(TextLanguage, Marker),
		ndef.NewTextRecord(TextLanguage, addr),
		ndef.NewTextRecord(TextLanguage, sessionID.String()),
	), nil
}

// Decode parses a raw tag message. It returns ok == false for anything that
// is not a well-formed handover message; callers hand such messages to the
// generic tag handler.
func Decode(data []byte) (Handshake, bool) {
	msg, err := ndef.Unmarshal(data)
	if err != nil {
		return Handshake{}, false
	}
	return DecodeMessage(msg)
}

// DecodeMessage is Decode for an already parsed message.
func DecodeMessage(msg *ndef.Message) (Handshake, bool) {
	if msg == nil || len(msg.Records) != RecordCount {
		return Handshake{}, false
	}
	if !IsHandover(msg) {
		return Handshake{}, false
	}

	appLink, err := msg.Records[0].URI()
	if err != nil {
		return Handshake{}, false
	}
	rawAddr, _, err := msg.Records[2].Text()
	if err != nil {
		return Handshake{}, false
	}
	addr, err := ParseAddress(rawAddr)
	if err != nil {
		return Handshake{}, false
	}
	rawID, _, err := msg.Records[3].Text()
	if err != nil {
		return Handshake{}, false
	}
	id, err := uuid.Parse(rawID)
	if err != nil || id == uuid.Nil {
		return Handshake{}, false
	}

	return Handshake{
		AppLink:     appLink,
		PeerAddress: addr,
		SessionID:   id,
	}, true
}

// IsHandover reports whether msg has the handover shape: exactly four
// records, the second being the marker text.
func IsHandover(msg *ndef.Message) bool {
	if msg == nil || len(msg.Records) != RecordCount {
		return false
	}
	text, _, err := msg.Records[1].Text()
	return err == nil && text == Marker
}

// ParseAddress validates a Bluetooth hardware address and returns it in
// canonical upper-case colon-separated form. Dashes are accepted as
// separators.
func ParseAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 17 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	out := make([]byte, 0, 17)
	for i := 0; i < 17; i++ {
		c := s[i]
		if i%3 == 2 {
			if c != ':' && c != '-' {
				return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
			}
			out = append(out, ':')
			continue
		}
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F':
		case c >= 'a' && c <= 'f':
			c -= 'a' - 'A'
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		out = append(out, c)
	}
	return string(out), nil
}
