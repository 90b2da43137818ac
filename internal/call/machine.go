package call

import (
	"fmt"
	"sync"
)

// Machine is the pure call state core. It validates every lifecycle
// edge and tracks the two events that gate activation: the answer
// being applied and the first remote track arriving. A call becomes
// active only once both have happened, so neither side reports an
// active call before media flows both ways.
type Machine struct {
	mu         sync.Mutex
	state      State
	answerSeen bool
	trackSeen  bool
}

func NewMachine() *Machine {
	return &Machine{}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dial moves idle to calling.
func (m *Machine) Dial() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return fmt.Errorf("%w: dial in %s", ErrInvalidTransition, m.state)
	}
	m.state = StateCalling
	return nil
}

// Ring moves idle to incoming.
func (m *Machine) Ring() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return fmt.Errorf("%w: ring in %s", ErrInvalidTransition, m.state)
	}
	m.state = StateIncoming
	return nil
}

// Answer records the offer/answer exchange completing. On the calling
// side that is the remote answer landing; on the incoming side it is
// the local answer going out.
func (m *Machine) Answer() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCalling && m.state != StateIncoming {
		return m.state, fmt.Errorf("%w: answer in %s", ErrInvalidTransition, m.state)
	}
	m.answerSeen = true
	m.activateLocked()
	return m.state, nil
}

// RemoteTrack records the first remote media arriving.
func (m *Machine) RemoteTrack() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		return m.state, fmt.Errorf("%w: remote track in %s", ErrInvalidTransition, m.state)
	}
	m.trackSeen = true
	m.activateLocked()
	return m.state, nil
}

func (m *Machine) activateLocked() {
	if m.state == StateActive {
		return
	}
	if m.answerSeen && m.trackSeen {
		m.state = StateActive
	}
}

// End resets to idle from any state. Ending an idle machine is a
// no-op, so every cleanup path can call it unconditionally.
func (m *Machine) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.answerSeen = false
	m.trackSeen = false
}
