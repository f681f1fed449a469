package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nfchandover/handover-go/pkg/connection"
	"github.com/nfchandover/handover-go/pkg/log"
)

// Default configuration values.
const (
	DefaultAcceptRetries  = 3
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadBufferSize = 1024
)

// DefaultServiceID is the RFCOMM service UUID both peers listen and dial on.
var DefaultServiceID = uuid.MustParse("8ce255c0-200a-11e0-ac64-0800200c9a66")

// Config configures a Manager.
type Config struct {
	// ServiceID is the RFCOMM service UUID.
	ServiceID uuid.UUID

	// AcceptRetries is the number of consecutive accept failures tolerated
	// before the listener gives up.
	AcceptRetries int

	// AcceptBackoff paces accept retries.
	AcceptBackoff connection.BackoffConfig

	// ConnectTimeout bounds a single dial.
	ConnectTimeout time.Duration

	// ReadBufferSize is the size of the read buffer. Each read emits at
	// most this many bytes.
	ReadBufferSize int

	// Logger is used for operational logging (optional).
	Logger *slog.Logger

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ServiceID:      DefaultServiceID,
		AcceptRetries:  DefaultAcceptRetries,
		AcceptBackoff:  connection.DefaultBackoffConfig(),
		ConnectTimeout: DefaultConnectTimeout,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ServiceID == uuid.Nil {
		c.ServiceID = d.ServiceID
	}
	if c.AcceptRetries <= 0 {
		c.AcceptRetries = d.AcceptRetries
	}
	if c.AcceptBackoff.Initial <= 0 {
		c.AcceptBackoff = d.AcceptBackoff
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	c.ProtocolLogger = log.Or(c.ProtocolLogger)
	return c
}
