package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Header flags.
const (
	flagMB  = 0x80
	flagME  = 0x40
	flagCF  = 0x20
	flagSR  = 0x10
	flagIL  = 0x08
	tnfMask = 0x07
)

// TNF is the type name format of a record.
type TNF uint8

const (
	TNFEmpty       TNF = 0x00
	TNFWellKnown   TNF = 0x01
	TNFMedia       TNF = 0x02
	TNFAbsoluteURI TNF = 0x03
	TNFExternal    TNF = 0x04
	TNFUnknown     TNF = 0x05
	TNFUnchanged   TNF = 0x06
)

// String returns the TNF name.
func (t TNF) String() string {
	switch t {
	case TNFEmpty:
		return "EMPTY"
	case TNFWellKnown:
		return "WELL_KNOWN"
	case TNFMedia:
		return "MEDIA"
	case TNFAbsoluteURI:
		return "ABSOLUTE_URI"
	case TNFExternal:
		return "EXTERNAL"
	case TNFUnknown:
		return "UNKNOWN"
	case TNFUnchanged:
		return "UNCHANGED"
	default:
		return "RESERVED"
	}
}

// Well-known record types.
var (
	TypeURI  = []byte("U")
	TypeText = []byte("T")
)

// Decoding errors.
var (
	ErrEmptyMessage  = errors.New("empty NDEF message")
	ErrTruncated     = errors.New("truncated NDEF record")
	ErrChunked       = errors.New("chunked NDEF records not supported")
	ErrInvalidHeader = errors.New("invalid NDEF message header")
	ErrNotText       = errors.New("not a text record")
	ErrNotURI        = errors.New("not a URI record")
)

// Record is a single NDEF record.
type Record struct {
	TNF     TNF
	Type    []byte
	ID      []byte
	Payload []byte
}

// Message is an ordered list of records.
type Message struct {
	Records []Record
}

// NewMessage creates a message from the given records.
func NewMessage(records ...Record) *Message {
	return &Message{Records: records}
}

// Marshal encodes the message. MB is set on the first record, ME on the last.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Records) == 0 {
		return nil, ErrEmptyMessage
	}

	var out []byte
	for i, r := range m.Records {
		if len(r.Type) > 0xFF {
			return nil, fmt.Errorf("record %d: type too long (%d bytes)", i, len(r.Type))
		}
		if len(r.ID) > 0xFF {
			return nil, fmt.Errorf("record %d: id too long (%d bytes)", i, len(r.ID))
		}

		header := byte(r.TNF) & tnfMask
		if i == 0 {
			header |= flagMB
		}
		if i == len(m.Records)-1 {
			header |= flagME
		}
		short := len(r.Payload) <= 0xFF
		if short {
			header |= flagSR
		}
		if len(r.ID) > 0 {
			header |= flagIL
		}

		out = append(out, header, byte(len(r.Type)))
		if short {
			out = append(out, byte(len(r.Payload)))
		} else {
			out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
		}
		if len(r.ID) > 0 {
			out = append(out, byte(len(r.ID)))
		}
		out = append(out, r.Type...)
		out = append(out, r.ID...)
		out = append(out, r.Payload...)
	}
	return out, nil
}

// Unmarshal parses an encoded message.
func Unmarshal(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}

	msg := &Message{}
	pos := 0
	for pos < len(data) {
		header := data[pos]
		if len(msg.Records) == 0 && header&flagMB == 0 {
			return nil, fmt.Errorf("%w: first record missing MB", ErrInvalidHeader)
		}
		if header&flagCF != 0 {
			return nil, ErrChunked
		}
		pos++

		if pos >= len(data) {
			return nil, ErrTruncated
		}
		typeLen := int(data[pos])
		pos++

		var payloadLen int
		if header&flagSR != 0 {
			if pos >= len(data) {
				return nil, ErrTruncated
			}
			payloadLen = int(data[pos])
			pos++
		} else {
			if pos+4 > len(data) {
				return nil, ErrTruncated
			}
			n := binary.BigEndian.Uint32(data[pos : pos+4])
			if uint64(n) > uint64(len(data)) {
				return nil, ErrTruncated
			}
			payloadLen = int(n)
			pos += 4
		}

		idLen := 0
		if header&flagIL != 0 {
			if pos >= len(data) {
				return nil, ErrTruncated
			}
			idLen = int(data[pos])
			pos++
		}

		if pos+typeLen+idLen+payloadLen > len(data) {
			return nil, ErrTruncated
		}

		r := Record{TNF: TNF(header & tnfMask)}
		r.Type = append([]byte(nil), data[pos:pos+typeLen]...)
		pos += typeLen
		if idLen > 0 {
			r.ID = append([]byte(nil), data[pos:pos+idLen]...)
			pos += idLen
		}
		r.Payload = append([]byte(nil), data[pos:pos+payloadLen]...)
		pos += payloadLen

		msg.Records = append(msg.Records, r)

		if header&flagME != 0 {
			if pos != len(data) {
				return nil, fmt.Errorf("%w: %d trailing bytes after ME", ErrInvalidHeader, len(data)-pos)
			}
			return msg, nil
		}
	}
	return nil, fmt.Errorf("%w: last record missing ME", ErrInvalidHeader)
}

// HexString renders raw bytes as upper-case hex, as tag readers display them.
func HexString(data []byte) string {
	const digits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(data) * 2)
	for _, v := range data {
		b.WriteByte(digits[v>>4])
		b.WriteByte(digits[v&0x0F])
	}
	return b.String()
}
