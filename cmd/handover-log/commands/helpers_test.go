package commands

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/nfchandover/handover-go/pkg/log"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hlog")
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
}

// sessionEvents is a short acceptor session: handshake, listen, connect,
// one frame each way, peer disconnect.
func sessionEvents() []log.Event {
	const conn = "c0ffee00-1111-2222-3333-444455556666"
	const peer = "BB:BB:BB:BB:BB:BB"
	at := func(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }
	return []log.Event{
		{
			Timestamp: at(0), Direction: log.DirectionOut, Layer: log.LayerNFC, Category: log.CategoryHandshake,
			SessionID: "s-1",
			Handshake: &log.HandshakeEvent{AppLink: "https://app/x", PeerAddress: "AA:AA:AA:AA:AA:AA", SessionID: "s-1"},
		},
		{
			Timestamp: at(1), ConnectionID: conn, Layer: log.LayerSession, Category: log.CategoryState,
			LocalRole: log.RoleAcceptor, SessionID: "s-1",
			StateChange: &log.StateChangeEvent{OldState: "NONE", NewState: "LISTENING", Epoch: 1, Reason: "listen"},
		},
		{
			Timestamp: at(251), ConnectionID: conn, Layer: log.LayerSession, Category: log.CategoryState,
			LocalRole: log.RoleAcceptor, RemoteAddr: peer, PeerName: "phone", SessionID: "s-1",
			StateChange: &log.StateChangeEvent{OldState: "LISTENING", NewState: "CONNECTED", Epoch: 1, Reason: "accepted"},
		},
		{
			Timestamp: at(300), ConnectionID: conn, Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryData,
			LocalRole: log.RoleAcceptor, RemoteAddr: peer, SessionID: "s-1",
			Frame: log.NewFrameEvent([]byte("hello")),
		},
		{
			Timestamp: at(310), ConnectionID: conn, Direction: log.DirectionOut, Layer: log.LayerTransport, Category: log.CategoryData,
			LocalRole: log.RoleAcceptor, RemoteAddr: peer, SessionID: "s-1",
			Frame: log.NewFrameEvent([]byte("hi")),
		},
		{
			Timestamp: at(900), ConnectionID: conn, Layer: log.LayerSession, Category: log.CategoryError,
			LocalRole: log.RoleAcceptor, RemoteAddr: peer, SessionID: "s-1",
			Error: &log.ErrorEventData{Layer: log.LayerTransport, Message: "EOF", Context: "read"},
		},
		{
			Timestamp: at(901), ConnectionID: conn, Layer: log.LayerSession, Category: log.CategoryState,
			LocalRole: log.RoleAcceptor, RemoteAddr: peer, SessionID: "s-1",
			StateChange: &log.StateChangeEvent{OldState: "CONNECTED", NewState: "NONE", Epoch: 1, Reason: "peer disconnected"},
		},
	}
}
