package session

import (
	"fmt"
	"sync"

	"ai-suggestion-relay-service/internal/fault"
)

// State represents the lifecycle state of a relay session.
type State int

const (
	// StateIdle - Session created, transcription not started yet.
	StateIdle State = iota
	// StateStarting - Transcription stream is being established.
	StateStarting
	// StateStreaming - Audio flows and events may be emitted.
	StateStreaming
	// StateFinishing - End-of-input signaled, waiting for the provider drain.
	StateFinishing
	// StateDrained - Provider confirmed no more transcripts will arrive.
	StateDrained
	// StateErrored - Session failed. Terminal apart from Close.
	StateErrored
	// StateClosed - Session is fully torn down. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateStreaming:
		return "STREAMING"
	case StateFinishing:
		return "FINISHING"
	case StateDrained:
		return "DRAINED"
	case StateErrored:
		return "ERRORED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for states no transition leaves except Close.
func (s State) IsTerminal() bool {
	return s == StateErrored || s == StateClosed
}

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → STARTING → STREAMING → FINISHING → DRAINED → CLOSED
//	                      │            │
//	                      └────────────┴──→ ERRORED → CLOSED
//
// Rules:
//   - Audio is accepted only in STREAMING.
//   - BeginFinishing is idempotent; a second call is a no-op.
//   - Fail moves any non-terminal state to ERRORED.
//   - Close is valid from DRAINED or ERRORED, and idempotent.
type Lifecycle struct {
	mu        sync.RWMutex
	sessionId string
	state     State
}

// NewLifecycle creates a new session lifecycle in IDLE state.
func NewLifecycle(sessionId string) *Lifecycle {
	return &Lifecycle{
		sessionId: sessionId,
		state:     StateIdle,
	}
}

// SessionId returns the session ID.
func (l *Lifecycle) SessionId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// CanAcceptAudio returns true if audio chunks may be forwarded.
func (l *Lifecycle) CanAcceptAudio() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateStreaming
}

// Begin transitions IDLE → STARTING.
func (l *Lifecycle) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateIdle {
		return l.invalid("begin")
	}
	l.state = StateStarting
	return nil
}

// MarkStreaming transitions STARTING → STREAMING.
func (l *Lifecycle) MarkStreaming() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStarting {
		return l.invalid("mark streaming")
	}
	l.state = StateStreaming
	return nil
}

// BeginFinishing transitions STREAMING → FINISHING. Calling it again while
// finishing or later is a no-op, so duplicate end-of-input markers are
// harmless.
func (l *Lifecycle) BeginFinishing() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateStreaming:
		l.state = StateFinishing
		return nil
	case StateFinishing, StateDrained, StateErrored, StateClosed:
		return nil
	default:
		return l.invalid("begin finishing")
	}
}

// MarkDrained transitions FINISHING → DRAINED.
func (l *Lifecycle) MarkDrained() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateFinishing {
		return l.invalid("mark drained")
	}
	l.state = StateDrained
	return nil
}

// Fail moves any non-terminal state to ERRORED.
// Returns true if the transition happened, false if already terminal.
func (l *Lifecycle) Fail() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateErrored
	return true
}

// Close transitions DRAINED or ERRORED → CLOSED. Idempotent.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateDrained, StateErrored:
		l.state = StateClosed
		return nil
	case StateClosed:
		return nil
	default:
		return l.invalid("close")
	}
}

func (l *Lifecycle) invalid(op string) error {
	return fault.New(fault.KindInvalidState,
		fmt.Sprintf("cannot %s in state %s", op, l.state))
}
