package interactive

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/nfchandover/handover-go/pkg/ndef"
	"github.com/nfchandover/handover-go/pkg/session"
)

// FormatEvent renders a session event as one console line.
func FormatEvent(ev session.Event) string {
	switch ev.Type {
	case session.EventStateChange:
		line := fmt.Sprintf("[STATE] %s -> %s", ev.From, ev.To)
		if ev.PeerAddress != "" {
			line += " peer=" + ev.PeerAddress
		}
		if ev.PeerName != "" {
			line += " name=" + strconv.Quote(ev.PeerName)
		}
		return line
	case session.EventRead:
		return "[READ]  " + formatData(ev.Data)
	case session.EventWrite:
		return "[WRITE] " + formatData(ev.Data)
	case session.EventError:
		return fmt.Sprintf("[ERROR] %v", ev.Err)
	default:
		return fmt.Sprintf("[%s]", ev.Type)
	}
}

// formatData shows printable text quoted and anything else as hex.
func formatData(b []byte) string {
	if utf8.Valid(b) {
		s := string(b)
		if q := strconv.Quote(s); len(q) <= 2*len(s)+2 {
			return q
		}
	}
	return "0x" + ndef.HexString(b)
}
