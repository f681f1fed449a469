// Package nfc is a file-backed NFC front end for hosts without a reader.
//
// A tag directory stands in for the radio. The local handshake is written to
// <dir>/outbox.ndef, where a peer (or a person) can copy it from. Files that
// appear in <dir>/inbox are treated as tag taps. Writers should create the
// file under another name and rename it into place; only files ending in
// .ndef are read.
package nfc
