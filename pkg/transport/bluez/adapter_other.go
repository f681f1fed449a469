//go:build !linux

package bluez

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nfchandover/handover-go/pkg/transport"
)

// ErrUnsupported is returned by Open on platforms without BlueZ.
var ErrUnsupported = errors.New("bluez: only supported on linux")

// Config configures an Adapter.
type Config struct {
	Adapter     string
	ProfileName string
	Logger      *slog.Logger
}

// Adapter is unavailable on this platform.
type Adapter struct{}

// Open always fails on this platform.
func Open(Config) (*Adapter, error) { return nil, ErrUnsupported }

func (a *Adapter) Address() string { return "" }

func (a *Adapter) Listen(uuid.UUID) (transport.Listener, error) { return nil, ErrUnsupported }

func (a *Adapter) Dial(context.Context, string, uuid.UUID) (transport.Conn, error) {
	return nil, ErrUnsupported
}

func (a *Adapter) Close() error { return nil }

var _ transport.Adapter = (*Adapter)(nil)
