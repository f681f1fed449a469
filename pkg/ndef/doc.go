// Package ndef implements the NFC Data Exchange Format message encoding.
//
// Only the subset needed to carry handover handshakes is supported:
//   - Well-known URI records (RTD "U") with the standard prefix table
//   - Well-known text records (RTD "T"), UTF-8 and UTF-16
//   - Short and long records, optional ID field
//
// Chunked records (CF flag) are rejected.
//
// # Record Layout
//
//	┌──────────────────────────────┐
//	│ MB ME CF SR IL TNF (1 byte)  │
//	├──────────────────────────────┤
//	│ TYPE LENGTH (1 byte)         │
//	├──────────────────────────────┤
//	│ PAYLOAD LENGTH (1 or 4 bytes)│
//	├──────────────────────────────┤
//	│ ID LENGTH (0 or 1 byte)      │
//	├──────────────────────────────┤
//	│ TYPE │ ID │ PAYLOAD          │
//	└──────────────────────────────┘
package ndef
