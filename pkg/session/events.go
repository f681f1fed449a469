package session

import (
	"sync"

	"github.com/nfchandover/handover-go/pkg/connection"
)

// EventType identifies the kind of Event.
type EventType uint8

const (
	// EventStateChange reports a committed state transition.
	EventStateChange EventType = iota
	// EventRead carries bytes read from the peer.
	EventRead
	// EventWrite echoes bytes written to the peer.
	EventWrite
	// EventError reports a worker or I/O failure.
	EventError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventStateChange:
		return "STATE"
	case EventRead:
		return "READ"
	case EventWrite:
		return "WRITE"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is a notification from the Manager.
type Event struct {
	Type EventType

	// From and To are set for EventStateChange.
	From connection.State
	To   connection.State

	// Epoch is the machine epoch the event belongs to.
	Epoch uint64

	// PeerAddress and PeerName describe the peer once known. The None
	// event of a session still carries the peer it ended with.
	PeerAddress string
	PeerName    string

	// SessionID is the handover session id the session was started with,
	// or "".
	SessionID string

	// Data is set for EventRead and EventWrite. It is owned by the receiver.
	Data []byte

	// Err is set for EventError.
	Err error
}

// eventQueue is an unbounded FIFO drained into out by one goroutine, so
// producers holding the machine lock never block on the consumer.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	signal chan struct{}
	out    chan Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
	}
	go q.run()
	return q
}

// push appends ev. Events pushed after close are dropped.
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
}

// close stops accepting events. out is closed once the backlog is delivered.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, ev := range items {
			q.out <- ev
		}
		if closed {
			return
		}
		if len(items) == 0 {
			<-q.signal
		}
	}
}
