package nfc

import (
	"log/slog"

	"github.com/nfchandover/handover-go/pkg/ndef"
)

// LogPassthrough renders tag messages that are not handovers to a logger.
type LogPassthrough struct {
	Logger *slog.Logger
}

// HandleMessage logs each record of data, or the raw bytes if data is not
// an NDEF message.
func (p LogPassthrough) HandleMessage(data []byte) {
	logger := p.Logger
	if logger == nil {
		return
	}
	msg, err := ndef.Unmarshal(data)
	if err != nil {
		logger.Info("tag", "raw", ndef.HexString(data), "error", err)
		return
	}
	for i, r := range msg.Records {
		logger.Info("tag record", "index", i, "record", r.String())
	}
}
