// Package transport defines the byte-stream transport a handover session runs
// over.
//
// The production transport is Bluetooth RFCOMM (package bluez). A session
// only needs three things from it: the local adapter address to put into the
// handshake, a listener bound to a service UUID, and a dialer that reaches a
// peer by address and service UUID. Adapter captures exactly that, so the
// session manager can run unchanged over RFCOMM, over TCP with mDNS address
// resolution (package tcp), or over in-process pipes (package memory).
//
// # Unblocking
//
// Implementations must let Close unblock pending calls: closing a Listener
// makes a blocked Accept return ErrListenerClosed, and closing a Conn makes a
// blocked Read or Write return an error. The session manager relies on this
// for teardown.
package transport
