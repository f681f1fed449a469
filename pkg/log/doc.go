// Package log provides structured protocol logging for handover sessions.
//
// This package defines the Logger interface and Event types for capturing
// what crosses each boundary of a handover: the NDEF handshake written to or
// read from a tag, session state changes, and every read and write on the
// RFCOMM stream. It is separate from operational logging (slog).
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For capture: write to binary file
//	fl, _ := log.NewFileLogger("/var/log/handover/node.hlog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # File Format
//
// A .hlog file is a CBOR sequence: a tagged header carrying the format
// version, then one integer-keyed map per event. FileLogger refuses to
// append to a file without the header, and Reader refuses to read one.
// The handover-log tool views, filters and exports them.
package log
