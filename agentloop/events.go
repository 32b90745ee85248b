package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart  EventKind = "session_start"
	EventSessionEnd    EventKind = "session_end"
	EventUserInput     EventKind = "user_input"
	EventModelRequest  EventKind = "model_request"
	EventStep          EventKind = "step"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventFinalOutput   EventKind = "final_output"
	EventDecodeError   EventKind = "decode_error"
	EventBackendError  EventKind = "backend_error"
	EventUnknownStep   EventKind = "unknown_step"
	EventLoopDetection EventKind = "loop_detection"
	EventWarning       EventKind = "warning"
)

// SessionEvent is a typed event emitted by the agent loop.
type SessionEvent struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// String returns a string field of Data, or "".
func (e SessionEvent) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// EventHandler receives events on the loop goroutine, in emission order.
type EventHandler func(SessionEvent)

// EventEmitter delivers events synchronously to subscribed handlers.
type EventEmitter struct {
	sessionID string
	handlers  []EventHandler
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates an emitter for a session.
func NewEventEmitter(sessionID string) *EventEmitter {
	return &EventEmitter{sessionID: sessionID}
}

// Subscribe registers h for all subsequent events.
func (e *EventEmitter) Subscribe(h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Emit delivers an event to every handler. Events emitted after Close are
// dropped.
func (e *EventEmitter) Emit(kind EventKind, data map[string]any) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	event := SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	}
	for _, h := range handlers {
		h(event)
	}
}

// Close stops delivery. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}
