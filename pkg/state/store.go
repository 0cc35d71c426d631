// Package state holds the agent's view of the world.
//
// Invariants:
// - Health and hunger are clamped to [0,20] on every update.
// - GamePhase is recomputed from the inventory exactly once per update that
//   carries an inventory and is never assigned any other way.
// - The action history is a FIFO ring; the oldest entry is evicted first.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultHistoryCapacity is used when Config.HistoryCapacity is zero.
	DefaultHistoryCapacity = 100
	maxHistoryCapacity     = 100
	chatCapacity           = 5
)

// Observer is notified with a copy of the state after every update.
type Observer func(WorldState)

// Config configures a Store.
type Config struct {
	HistoryCapacity int
	Logger          zerolog.Logger

	// PhaseFunc overrides phase inference. Defaults to DetermineGamePhase.
	PhaseFunc PhaseFunc
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Store owns the WorldState and the bounded action history.
type Store struct {
	mu      sync.RWMutex
	state   WorldState
	history []HistoryEntry
	cap     int

	observers  map[int]Observer
	observerID int
	obsMu      sync.RWMutex

	phaseFn PhaseFunc
	now     func() time.Time
	logger  zerolog.Logger
}

// NewStore creates a store holding the default starting state.
func NewStore(cfg Config) (*Store, error) {
	capacity := cfg.HistoryCapacity
	if capacity == 0 {
		capacity = DefaultHistoryCapacity
	}
	if capacity < 0 || capacity > maxHistoryCapacity {
		return nil, fmt.Errorf("history capacity must be between 1 and %d, got %d", maxHistoryCapacity, capacity)
	}

	phaseFn := cfg.PhaseFunc
	if phaseFn == nil {
		phaseFn = DetermineGamePhase
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		history:   make([]HistoryEntry, 0, capacity),
		cap:       capacity,
		observers: make(map[int]Observer),
		phaseFn:   phaseFn,
		now:       now,
		logger:    cfg.Logger,
	}
	s.state = WorldState{
		Health:     MaxStat,
		Hunger:     MaxStat,
		Inventory:  []ItemStack{},
		IsDay:      true,
		GamePhase:  PhaseEarly,
		LastUpdate: now(),
	}
	return s, nil
}

// Update merges a partial change into the current state and notifies
// observers. Callers are trusted to supply consistent values; only health
// and hunger are clamped.
func (s *Store) Update(u Update) {
	s.mu.Lock()
	if u.Position != nil {
		s.state.Position = *u.Position
	}
	if u.Rotation != nil {
		s.state.Rotation = *u.Rotation
	}
	if u.Health != nil {
		s.state.Health = clamp(*u.Health)
	}
	if u.Hunger != nil {
		s.state.Hunger = clamp(*u.Hunger)
	}
	if u.Inventory != nil {
		inv := make([]ItemStack, len(u.Inventory))
		copy(inv, u.Inventory)
		s.state.Inventory = inv
		s.state.GamePhase = s.phaseFn(inv)
	}
	if u.EntityID != nil {
		s.state.EntityID = *u.EntityID
	}
	if u.IsDay != nil {
		s.state.IsDay = *u.IsDay
	}
	if u.Spawned != nil {
		s.state.Spawned = *u.Spawned
	}
	if u.CurrentGoal != nil {
		s.state.CurrentGoal = *u.CurrentGoal
	}
	if u.Chat != "" {
		s.state.RecentChat = append(s.state.RecentChat, u.Chat)
		if len(s.state.RecentChat) > chatCapacity {
			s.state.RecentChat = s.state.RecentChat[len(s.state.RecentChat)-chatCapacity:]
		}
	}
	s.state.LastUpdate = s.now()
	snapshot := s.state.clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// State returns a copy of the current world state.
func (s *Store) State() WorldState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	s.observerID++
	id := s.observerID
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) notify(snapshot WorldState) {
	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.RUnlock()

	for _, fn := range observers {
		fn(snapshot.clone())
	}
}

// AddToHistory appends an entry tagged with the current phase and position,
// evicting the oldest entry when the log is full.
func (s *Store) AddToHistory(action string, outcome Outcome, detail string) HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := HistoryEntry{
		ID:        uuid.New().String(),
		Timestamp: s.now(),
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
		Phase:     s.state.GamePhase,
		Position:  s.state.Position,
	}

	if len(s.history) >= s.cap {
		// Shift instead of reslicing so the backing array does not grow.
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, entry)

	s.logger.Debug().
		Str("action", action).
		Str("outcome", string(outcome)).
		Int("history_size", len(s.history)).
		Msg("Recorded action")

	return entry
}

// History returns all retained entries, oldest first.
func (s *Store) History() []HistoryEntry {
	return s.RecentHistory(0)
}

// RecentHistory returns the newest n entries, oldest first. n <= 0 returns
// everything.
func (s *Store) RecentHistory(n int) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if n > 0 && n < len(s.history) {
		start = len(s.history) - n
	}
	out := make([]HistoryEntry, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// HistoryCapacity returns the configured ring size.
func (s *Store) HistoryCapacity() int {
	return s.cap
}

// IncrementErrors bumps the consecutive reasoning error counter and returns
// the new value.
func (s *Store) IncrementErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConsecutiveErrors++
	return s.state.ConsecutiveErrors
}

// ResetErrors sets the consecutive error counter back to zero.
func (s *Store) ResetErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConsecutiveErrors = 0
}

// ConsecutiveErrors returns the current error counter.
func (s *Store) ConsecutiveErrors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ConsecutiveErrors
}

func clamp(v int) int {
	if v < MinStat {
		return MinStat
	}
	if v > MaxStat {
		return MaxStat
	}
	return v
}
