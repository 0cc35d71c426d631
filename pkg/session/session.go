// Package session is the agent's narrow view of a live game session: send a
// command, subscribe to events, close.
//
// Two implementations are provided. Bridge talks JSON envelopes over a
// websocket to a bridge process that owns the game connection. Memory keeps
// everything in process and is used for dry runs and tests.
package session

import (
	"errors"
	"sync"
)

// Event names a session event.
type Event string

const (
	EventSpawn      Event = "spawn"
	EventPosition   Event = "position"
	EventHealth     Event = "health"
	EventInventory  Event = "inventory"
	EventTime       Event = "time"
	EventChat       Event = "chat"
	EventDisconnect Event = "disconnect"
	EventError      Event = "error"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("session closed")

// Handler receives the payload of one event.
type Handler func(Payload)

// Sender is the write half of a session. Send is fire-and-forget: a nil
// error means the command left the process, not that the game applied it.
type Sender interface {
	Send(name string, payload Payload) error
}

// Session is a live game session.
type Session interface {
	Sender
	// On registers a handler and returns a function that removes it.
	On(event Event, handler Handler) func()
	Close() error
}

type handlerSet struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Event]map[uint64]Handler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{handlers: make(map[Event]map[uint64]Handler)}
}

func (h *handlerSet) add(event Event, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.handlers[event] == nil {
		h.handlers[event] = make(map[uint64]Handler)
	}
	h.handlers[event][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers[event], id)
			h.mu.Unlock()
		})
	}
}

// emit calls handlers in registration order outside the lock.
func (h *handlerSet) emit(event Event, payload Payload) {
	h.mu.RLock()
	set := h.handlers[event]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sortIDs(ids)
	for _, id := range ids {
		h.mu.RLock()
		fn, ok := h.handlers[event][id]
		h.mu.RUnlock()
		if ok {
			fn(payload)
		}
	}
}

func sortIDs(ids []uint64) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
