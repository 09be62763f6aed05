package session

import (
	"sync"

	"ai-suggestion-relay-service/internal/fault"
	"ai-suggestion-relay-service/internal/models"
	"ai-suggestion-relay-service/internal/schema"
)

// ClientConn is the outbound half of the client connection.
type ClientConn interface {
	WriteEvent(event models.OutboundEvent) error
}

// Emitter serializes outbound events onto the client connection, assigning a
// strictly increasing, gapless sequence number per session. Once a write
// fails the emitter closes itself and every later Emit fails fast, so no
// event is ever delivered after a gap.
type Emitter struct {
	mu        sync.Mutex
	conn      ClientConn
	validator *schema.Validator
	next      int64
	closed    bool
}

// NewEmitter creates an emitter for one session.
func NewEmitter(conn ClientConn) *Emitter {
	return &Emitter{
		conn:      conn,
		validator: schema.New(),
	}
}

// Emit validates the event, stamps it with the next sequence number and
// writes it out. The sequence is consumed only on successful write.
func (e *Emitter) Emit(eventType models.EventType, data string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fault.New(fault.KindClientDisconnected, "emitter is closed")
	}

	event := models.OutboundEvent{
		Type:     eventType,
		Data:     data,
		Sequence: e.next,
	}
	if err := e.validator.Validate(event); err != nil {
		return fault.Wrap(fault.KindInvalidState, "outbound event rejected", err)
	}

	if err := e.conn.WriteEvent(event); err != nil {
		e.closed = true
		return fault.Wrap(fault.KindClientDisconnected, "client write failed", err)
	}
	e.next++
	return nil
}

// Close marks the emitter closed. Later Emit calls fail fast.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// EmittedCount returns how many events have been successfully written.
func (e *Emitter) EmittedCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next
}
