// Package connection provides the handover connection state machine.
//
// A handover session moves through four states:
//
//	NONE       → LISTENING    local handover started, waiting for the peer
//	NONE       → CONNECTING   remote handshake read, dialing the peer
//	LISTENING  → CONNECTING   both sides tapped; the initiator wins
//	LISTENING  → CONNECTED    inbound connection accepted
//	LISTENING  → NONE         stopped before a peer arrived
//	CONNECTING → CONNECTED    dial succeeded
//	CONNECTING → NONE         dial failed or was cancelled
//	CONNECTED  → NONE         peer closed, I/O error, or local teardown
//
// Every other edge is rejected with ErrInvalidTransition.
//
// # Atomic Transitions
//
// Machine.Transition runs an apply function under the machine lock before
// committing the new state. Owners use it to install or release session
// resources in the same critical section as the state change, so no reader
// can observe a state whose resources are missing.
//
// # Epochs
//
// Each transition into LISTENING or CONNECTING starts a new epoch, since each
// starts a new background worker. Workers capture
// the epoch they were started in and pass it back when they try to transition;
// a worker whose epoch is stale has been superseded and must release whatever
// it holds instead of committing.
//
// # Backoff
//
// Backoff produces exponential delays with jitter for bounded retries of
// failed accepts.
package connection
