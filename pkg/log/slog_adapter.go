package log

import (
	"context"
	"log/slog"
	"strings"
)

// SlogAdapter renders each protocol event as one slog record. The message
// names the category; the payload goes into a group named after its kind.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter logs events to logger at debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of a that logs at level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	c := *a
	c.level = level
	return &c
}

func (a *SlogAdapter) Log(event Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, a.level) {
		return
	}

	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs,
		slog.String("conn", event.ConnectionID),
		slog.String("layer", event.Layer.String()),
	)
	if event.Frame != nil || event.Handshake != nil {
		attrs = append(attrs, slog.String("dir", event.Direction.String()))
	}
	if event.LocalRole != RoleUnknown {
		attrs = append(attrs, slog.String("role", event.LocalRole.String()))
	}
	for _, kv := range [][2]string{
		{"remote", event.RemoteAddr},
		{"peer_name", event.PeerName},
		{"session", event.SessionID},
	} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	if p, ok := payload(event); ok {
		attrs = append(attrs, p)
	}

	a.logger.LogAttrs(ctx, a.level, "protocol "+strings.ToLower(event.Category.String()), attrs...)
}

func payload(event Event) (slog.Attr, bool) {
	switch {
	case event.Frame != nil:
		return slog.Group("frame",
			"size", event.Frame.Size,
			"truncated", event.Frame.Truncated), true
	case event.Handshake != nil:
		return slog.Group("handshake",
			"peer", event.Handshake.PeerAddress,
			"session", event.Handshake.SessionID,
			"app_link", event.Handshake.AppLink), true
	case event.StateChange != nil:
		return slog.Group("state",
			"from", event.StateChange.OldState,
			"to", event.StateChange.NewState,
			"epoch", event.StateChange.Epoch,
			"reason", event.StateChange.Reason), true
	case event.Error != nil:
		return slog.Group("error",
			"layer", event.Error.Layer.String(),
			"msg", event.Error.Message,
			"op", event.Error.Context), true
	}
	return slog.Attr{}, false
}

var _ Logger = (*SlogAdapter)(nil)
