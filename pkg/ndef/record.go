package ndef

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// uriPrefixes is the NFC Forum URI identifier code table.
var uriPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

const (
	textUTF16Flag = 0x80
	textLangMask  = 0x3F
)

// NewURIRecord creates a well-known URI record. The URI is stored verbatim
// with identifier code 0x00 (no abbreviation).
func NewURIRecord(uri string) Record {
	payload := make([]byte, 0, len(uri)+1)
	payload = append(payload, 0x00)
	payload = append(payload, uri...)
	return Record{TNF: TNFWellKnown, Type: TypeURI, Payload: payload}
}

// NewTextRecord creates a UTF-8 well-known text record.
func NewTextRecord(lang, text string) Record {
	if len(lang) > textLangMask {
		lang = lang[:textLangMask]
	}
	payload := make([]byte, 0, 1+len(lang)+len(text))
	payload = append(payload, byte(len(lang)))
	payload = append(payload, lang...)
	payload = append(payload, text...)
	return Record{TNF: TNFWellKnown, Type: TypeText, Payload: payload}
}

// IsURI reports whether r is a well-known URI record.
func (r Record) IsURI() bool {
	return r.TNF == TNFWellKnown && bytes.Equal(r.Type, TypeURI)
}

// IsText reports whether r is a well-known text record.
func (r Record) IsText() bool {
	return r.TNF == TNFWellKnown && bytes.Equal(r.Type, TypeText)
}

// URI returns the expanded URI of a URI record.
func (r Record) URI() (string, error) {
	if !r.IsURI() {
		return "", ErrNotURI
	}
	if len(r.Payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrNotURI)
	}
	code := int(r.Payload[0])
	if code >= len(uriPrefixes) {
		return "", fmt.Errorf("%w: reserved identifier code 0x%02X", ErrNotURI, code)
	}
	rest := r.Payload[1:]
	if !utf8.Valid(rest) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrNotURI)
	}
	return uriPrefixes[code] + string(rest), nil
}

// Text returns the text and language code of a text record.
func (r Record) Text() (text, lang string, err error) {
	if !r.IsText() {
		return "", "", ErrNotText
	}
	if len(r.Payload) == 0 {
		return "", "", fmt.Errorf("%w: empty payload", ErrNotText)
	}
	status := r.Payload[0]
	langLen := int(status & textLangMask)
	if 1+langLen > len(r.Payload) {
		return "", "", fmt.Errorf("%w: language code overruns payload", ErrNotText)
	}
	lang = string(r.Payload[1 : 1+langLen])
	body := r.Payload[1+langLen:]

	if status&textUTF16Flag != 0 {
		return decodeUTF16(body), lang, nil
	}
	if !utf8.Valid(body) {
		return "", "", fmt.Errorf("%w: invalid UTF-8", ErrNotText)
	}
	return string(body), lang, nil
}

// decodeUTF16 decodes UTF-16 text, honouring a byte order mark and
// defaulting to big-endian.
func decodeUTF16(b []byte) string {
	var order binary.ByteOrder = binary.BigEndian
	if len(b) >= 2 {
		switch {
		case b[0] == 0xFF && b[1] == 0xFE:
			order = binary.LittleEndian
			b = b[2:]
		case b[0] == 0xFE && b[1] == 0xFF:
			b = b[2:]
		}
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, order.Uint16(b[i:]))
	}
	return string(utf16.Decode(units))
}

// String renders a record for display.
func (r Record) String() string {
	switch {
	case r.IsURI():
		if uri, err := r.URI(); err == nil {
			return "URI " + uri
		}
	case r.IsText():
		if text, lang, err := r.Text(); err == nil {
			return fmt.Sprintf("TEXT[%s] %s", lang, text)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s type=%q payload=%s", r.TNF, r.Type, HexString(r.Payload))
	return b.String()
}
