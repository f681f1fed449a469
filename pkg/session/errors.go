package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/nfchandover/handover-go/pkg/transport"
)

// Session errors.
var (
	// ErrAlreadyConnecting is returned when a session is already being set up
	// or is connected.
	ErrAlreadyConnecting = errors.New("already connecting or connected")

	// ErrAcceptFailed is logged for each failed accept. Failures are retried
	// and only ErrAcceptExhausted reaches Events.
	ErrAcceptFailed = errors.New("accept failed")

	// ErrAcceptExhausted is reported when the listener gives up.
	ErrAcceptExhausted = errors.New("accept retries exhausted")

	// ErrConnectFailed is matched by every *ConnectError.
	ErrConnectFailed = errors.New("connect failed")

	// ErrPeerDisconnected is reported when the conn fails or the peer closes it.
	ErrPeerDisconnected = errors.New("peer disconnected")

	// ErrNotConnected is returned by Write outside the Connected state.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager closed")

	errNotListening = errors.New("not listening")
)

// ConnectReason classifies a failed dial.
type ConnectReason uint8

const (
	ReasonOther ConnectReason = iota
	ReasonTimeout
	ReasonRefused
	ReasonUnreachable
	ReasonCancelled
)

// String returns the reason name.
func (r ConnectReason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonRefused:
		return "refused"
	case ReasonUnreachable:
		return "unreachable"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// ConnectError describes a failed dial.
type ConnectError struct {
	Address string
	Reason  ConnectReason
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Address, e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is makes every ConnectError match ErrConnectFailed.
func (e *ConnectError) Is(target error) bool { return target == ErrConnectFailed }

// classifyDial maps a dial error to a reason. sessionCtx is the session's own
// context; its cancellation means the dial was torn down rather than timed out.
func classifyDial(sessionCtx context.Context, err error) ConnectReason {
	switch {
	case sessionCtx.Err() != nil, errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, transport.ErrRefused):
		return ReasonRefused
	case errors.Is(err, transport.ErrUnreachable):
		return ReasonUnreachable
	default:
		return ReasonOther
	}
}

// IOError wraps a transport read or write failure.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }
