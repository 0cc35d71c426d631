package state

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	snapshotHistory   = 5
	maxHistoryLine    = 120
	maxInventoryItems = 12
)

// Snapshot is the read-only projection the decision engine works from. It is
// built from whatever the store holds at call time and may be stale.
type Snapshot struct {
	Position          string    `json:"position"`
	Health            string    `json:"health"`
	Hunger            string    `json:"hunger"`
	HealthPoints      int       `json:"health_points"`
	HungerPoints      int       `json:"hunger_points"`
	InventoryCount    int       `json:"inventory_count"`
	Inventory         string    `json:"inventory"`
	RecentActions     []string  `json:"recent_actions"`
	HasItems          bool      `json:"has_items"`
	CanSurvive        bool      `json:"can_survive"`
	Phase             GamePhase `json:"phase"`
	IsDay             bool      `json:"is_day"`
	Goal              string    `json:"goal,omitempty"`
	RecentChat        []string  `json:"recent_chat,omitempty"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
}

// SnapshotForDecision projects the current state for prompt building.
func (s *Store) SnapshotForDecision() Snapshot {
	ws := s.State()
	recent := s.RecentHistory(snapshotHistory)

	actions := make([]string, 0, len(recent))
	for _, e := range recent {
		actions = append(actions, FormatEntry(e))
	}

	count := ws.ItemCount()
	return Snapshot{
		Position:          fmt.Sprintf("%.1f, %.1f, %.1f", ws.Position.X, ws.Position.Y, ws.Position.Z),
		Health:            fmt.Sprintf("%d/%d", ws.Health, MaxStat),
		Hunger:            fmt.Sprintf("%d/%d", ws.Hunger, MaxStat),
		HealthPoints:      ws.Health,
		HungerPoints:      ws.Hunger,
		InventoryCount:    count,
		Inventory:         summarizeInventory(ws.Inventory),
		RecentActions:     actions,
		HasItems:          count > 0,
		CanSurvive:        ws.Health > 5 && ws.Hunger > 5,
		Phase:             ws.GamePhase,
		IsDay:             ws.IsDay,
		Goal:              ws.CurrentGoal,
		RecentChat:        ws.RecentChat,
		ConsecutiveErrors: ws.ConsecutiveErrors,
	}
}

// FormatEntry renders a history entry as a short line.
func FormatEntry(e HistoryEntry) string {
	line := fmt.Sprintf("%s -> %s", e.Action, e.Outcome)
	if e.Detail != "" {
		line = fmt.Sprintf("%s (%s)", line, e.Detail)
	}
	if len(line) > maxHistoryLine {
		line = Truncate(line, maxHistoryLine-3) + "..."
	}
	return line
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func summarizeInventory(inv []ItemStack) string {
	if len(inv) == 0 {
		return "empty"
	}
	parts := make([]string, 0, len(inv))
	for i, item := range inv {
		if i == maxInventoryItems {
			parts = append(parts, fmt.Sprintf("+%d more", len(inv)-maxInventoryItems))
			break
		}
		parts = append(parts, fmt.Sprintf("%s x%d", item.Name, item.Count))
	}
	return strings.Join(parts, ", ")
}
