package state

import (
	"strings"
)

// PhaseFunc infers a game phase from inventory contents.
type PhaseFunc func(inventory []ItemStack) GamePhase

var (
	endgameMarkers = []string{"elytra", "dragon_egg", "dragon_breath", "dragon_head", "end_crystal", "shulker"}
	lateMarkers    = []string{"diamond", "netherite", "ancient_debris"}
	midMarkers     = []string{"iron"}
)

// DetermineGamePhase classifies an inventory. Advanced tiers are checked
// first, so an inventory holding both iron and diamond items is late.
func DetermineGamePhase(inventory []ItemStack) GamePhase {
	switch {
	case holdsAny(inventory, endgameMarkers):
		return PhaseEndgame
	case holdsAny(inventory, lateMarkers):
		return PhaseLate
	case holdsAny(inventory, midMarkers):
		return PhaseMid
	default:
		return PhaseEarly
	}
}

func holdsAny(inventory []ItemStack, markers []string) bool {
	for _, item := range inventory {
		if item.Count <= 0 {
			continue
		}
		name := strings.ToLower(item.Name)
		for _, m := range markers {
			if strings.Contains(name, m) {
				return true
			}
		}
	}
	return false
}
