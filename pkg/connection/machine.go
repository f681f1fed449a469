package connection

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStaleEpoch is returned when a worker transitions with an epoch that has
// been superseded.
var ErrStaleEpoch = errors.New("stale epoch")

// Notifier receives committed transitions. It is called with the machine
// lock held, in commit order, and must not call back into the Machine.
type Notifier func(from, to State, epoch uint64)

// ApplyFunc runs under the machine lock before a transition is committed.
// Returning an error aborts the transition and leaves state untouched.
type ApplyFunc func(from State) error

// Machine is the authoritative handover connection state.
// It is safe for concurrent use.
type Machine struct {
	mu     sync.Mutex
	state  State
	epoch  uint64
	notify Notifier
}

// NewMachine creates a machine in StateNone. notify may be nil.
func NewMachine(notify Notifier) *Machine {
	return &Machine{
		state:  StateNone,
		notify: notify,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current state and epoch as one consistent read.
func (m *Machine) Snapshot() (State, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.epoch
}

// Epoch returns the current epoch.
func (m *Machine) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Do runs fn under the machine lock. Owners use it to read session fields
// consistently with the state.
func (m *Machine) Do(fn func(state State, epoch uint64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state, m.epoch)
}

// Transition moves the machine to the given state. apply may be nil.
// It returns the epoch the machine is in after the transition.
func (m *Machine) Transition(to State, apply ApplyFunc) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to, apply)
}

// TransitionInEpoch is Transition for background workers: it fails with
// ErrStaleEpoch unless the machine is still in the given epoch.
func (m *Machine) TransitionInEpoch(epoch uint64, to State, apply ApplyFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return fmt.Errorf("%w: %d != %d", ErrStaleEpoch, epoch, m.epoch)
	}
	_, err := m.transitionLocked(to, apply)
	return err
}

func (m *Machine) transitionLocked(to State, apply ApplyFunc) (uint64, error) {
	from := m.state
	if err := checkTransition(from, to); err != nil {
		return m.epoch, err
	}
	if apply != nil {
		if err := apply(from); err != nil {
			return m.epoch, err
		}
	}

	m.state = to
	if to == StateListening || to == StateConnecting {
		m.epoch++
	}
	if m.notify != nil {
		m.notify(from, to, m.epoch)
	}
	return m.epoch, nil
}
