package state

import (
	"time"
)

// Stat bounds for health and hunger.
const (
	MinStat = 0
	MaxStat = 20
)

// GamePhase is a coarse progression tier inferred from inventory contents.
type GamePhase string

const (
	PhaseEarly   GamePhase = "early"
	PhaseMid     GamePhase = "mid"
	PhaseLate    GamePhase = "late"
	PhaseEndgame GamePhase = "endgame"
)

// Outcome classifies how an executed action ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
)

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v offset by the given deltas.
func (v Vec3) Add(dx, dy, dz float64) Vec3 {
	return Vec3{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz}
}

// Rotation is the agent's look direction in degrees.
type Rotation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// ItemStack is one inventory slot.
type ItemStack struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// WorldState is the latest observed world snapshot.
type WorldState struct {
	Position          Vec3        `json:"position"`
	Rotation          Rotation    `json:"rotation"`
	Health            int         `json:"health"`
	Hunger            int         `json:"hunger"`
	Inventory         []ItemStack `json:"inventory"`
	EntityID          uint64      `json:"entity_id"`
	IsDay             bool        `json:"is_day"`
	Spawned           bool        `json:"spawned"`
	ConsecutiveErrors int         `json:"consecutive_errors"`
	GamePhase         GamePhase   `json:"game_phase"`
	CurrentGoal       string      `json:"current_goal,omitempty"`
	RecentChat        []string    `json:"recent_chat,omitempty"`
	LastUpdate        time.Time   `json:"last_update"`
}

// clone returns a deep copy so callers never share slices with the store.
func (w WorldState) clone() WorldState {
	out := w
	if w.Inventory != nil {
		out.Inventory = make([]ItemStack, len(w.Inventory))
		copy(out.Inventory, w.Inventory)
	}
	if w.RecentChat != nil {
		out.RecentChat = make([]string, len(w.RecentChat))
		copy(out.RecentChat, w.RecentChat)
	}
	return out
}

// ItemCount returns the total number of items across all stacks.
func (w WorldState) ItemCount() int {
	total := 0
	for _, s := range w.Inventory {
		total += s.Count
	}
	return total
}

// Update is a partial state change. Nil fields are left untouched. A nil
// Inventory leaves the inventory unchanged; an empty non-nil slice clears it.
type Update struct {
	Position    *Vec3
	Rotation    *Rotation
	Health      *int
	Hunger      *int
	Inventory   []ItemStack
	EntityID    *uint64
	IsDay       *bool
	Spawned     *bool
	CurrentGoal *string
	Chat        string
}

// HistoryEntry records one executed action. Entries are immutable once
// appended; the store only hands out copies.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail"`
	Phase     GamePhase `json:"phase"`
	Position  Vec3      `json:"position"`
}

// Ptr returns a pointer to v. It keeps Update literals short.
func Ptr[T any](v T) *T {
	return &v
}
