// Package handover implements the NFC side of a Bluetooth handover.
//
// A handshake is an NDEF message of exactly four records:
//
//	[0] URI   application link
//	[1] Text  "NfcToBluetoothHandoverRequest"
//	[2] Text  Bluetooth address of the listening device
//	[3] Text  session UUID
//
// The Orchestrator publishes the local handshake through a TagWriter while
// the session manager listens, and dials the address carried by a handshake
// read from a peer's tag. Tag messages of any other shape are handed to a
// Passthrough untouched.
package handover
