// Package persistence remembers peers across handover-node restarts.
//
// Peers are recorded when a session reaches CONNECTED and kept in a JSON
// file under the node's state directory. Nothing here dials on its own;
// the interactive console offers the last peer for a manual reconnect.
package persistence
