package session

import (
	"sync"
	"time"
)

// Command is one recorded Send call.
type Command struct {
	Name    string
	Payload Payload
	At      time.Time
}

// Memory is an in-process Session. Sent commands are recorded and events are
// injected with Emit.
type Memory struct {
	handlers *handlerSet

	mu       sync.Mutex
	commands []Command
	sendErr  error
	gate     chan struct{}
	closed   bool
}

// NewMemory creates an empty in-memory session.
func NewMemory() *Memory {
	return &Memory{handlers: newHandlerSet()}
}

// Send records the command. While the session is blocked, Send waits until
// Unblock is called.
func (m *Memory) Send(name string, payload Payload) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.commands = append(m.commands, Command{Name: name, Payload: clonePayload(payload), At: time.Now()})
	return nil
}

// On registers an event handler.
func (m *Memory) On(event Event, handler Handler) func() {
	return m.handlers.add(event, handler)
}

// Emit delivers an event to the registered handlers synchronously.
func (m *Memory) Emit(event Event, payload Payload) {
	if payload == nil {
		payload = Payload{}
	}
	m.handlers.emit(event, payload)
}

// Close marks the session closed. Blocked senders are released.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
	return nil
}

// Commands returns a copy of the recorded commands.
func (m *Memory) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// CommandCount returns the number of recorded commands.
func (m *Memory) CommandCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commands)
}

// CommandsNamed returns recorded commands with the given name.
func (m *Memory) CommandsNamed(name string) []Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Command
	for _, c := range m.commands {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Reset drops recorded commands.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.commands = nil
	m.mu.Unlock()
}

// SetSendError makes subsequent Send calls fail with err. nil restores them.
func (m *Memory) SetSendError(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

// Block makes Send wait until Unblock or Close.
func (m *Memory) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Unblock releases senders waiting in Send.
func (m *Memory) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

func clonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
