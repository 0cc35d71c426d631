package state

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotForDecision(t *testing.T) {
	t.Run("should project formatted stats", func(t *testing.T) {
		s := newTestStore(t, 20)
		s.Update(Update{
			Position:  &Vec3{X: 12.46, Y: 64, Z: -3.21},
			Health:    Ptr(18),
			Hunger:    Ptr(9),
			Inventory: []ItemStack{{Name: "oak_log", Count: 4}, {Name: "stick", Count: 2}},
			IsDay:     Ptr(false),
		})

		snap := s.SnapshotForDecision()
		assert.Equal(t, "12.5, 64.0, -3.2", snap.Position)
		assert.Equal(t, "18/20", snap.Health)
		assert.Equal(t, "9/20", snap.Hunger)
		assert.Equal(t, 6, snap.InventoryCount)
		assert.Equal(t, "oak_log x4, stick x2", snap.Inventory)
		assert.True(t, snap.HasItems)
		assert.True(t, snap.CanSurvive)
		assert.False(t, snap.IsDay)
		assert.Equal(t, PhaseEarly, snap.Phase)
	})

	t.Run("should flag survival risk", func(t *testing.T) {
		s := newTestStore(t, 20)
		s.Update(Update{Health: Ptr(5)})
		assert.False(t, s.SnapshotForDecision().CanSurvive)

		s.Update(Update{Health: Ptr(6), Hunger: Ptr(5)})
		assert.False(t, s.SnapshotForDecision().CanSurvive)

		s.Update(Update{Hunger: Ptr(6)})
		assert.True(t, s.SnapshotForDecision().CanSurvive)
	})

	t.Run("should include only the last five actions", func(t *testing.T) {
		s := newTestStore(t, 20)
		for i := 0; i < 8; i++ {
			s.AddToHistory(fmt.Sprintf("wait %d", i), OutcomeSuccess, "")
		}

		snap := s.SnapshotForDecision()
		require.Len(t, snap.RecentActions, 5)
		assert.Equal(t, "wait 3 -> success", snap.RecentActions[0])
		assert.Equal(t, "wait 7 -> success", snap.RecentActions[4])
		assert.False(t, snap.HasItems)
		assert.Equal(t, "empty", snap.Inventory)
	})
}

func TestFormatEntry(t *testing.T) {
	line := FormatEntry(HistoryEntry{Action: "mine stone", Outcome: OutcomeFailure, Detail: "Timed out"})
	assert.Equal(t, "mine stone -> failure (Timed out)", line)

	long := FormatEntry(HistoryEntry{Action: "chat", Outcome: OutcomeSuccess, Detail: strings.Repeat("x", 300)})
	assert.Len(t, long, maxHistoryLine)
	assert.True(t, strings.HasSuffix(long, "..."))

	wide := FormatEntry(HistoryEntry{Action: "chat", Outcome: OutcomeSuccess, Detail: strings.Repeat("é", 200)})
	assert.True(t, utf8.ValidString(wide))
	assert.LessOrEqual(t, len(wide), maxHistoryLine)
	assert.True(t, strings.HasSuffix(wide, "é..."))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel", Truncate("hello", 3))
	assert.Equal(t, "", Truncate("hello", 0))
	// "日" is three bytes; a cut inside it drops the whole rune.
	assert.Equal(t, "a", Truncate("a日本", 3))
	assert.Equal(t, "a日", Truncate("a日本", 4))
	assert.Equal(t, "", Truncate("日本", 2))
}
