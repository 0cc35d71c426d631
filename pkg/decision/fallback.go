package decision

import (
	"github.com/harun/craftpilot/pkg/state"
)

const lowHealthThreshold = 5

// Fallback picks a deterministic action from health and phase alone. It is
// used when the reasoning service cannot be trusted.
func Fallback(snap state.Snapshot) Plan {
	switch {
	case snap.HealthPoints <= lowHealthThreshold:
		return Plan{Action: "wait 5", Reasoning: "Health is low; waiting to regenerate"}
	case snap.Phase == state.PhaseEarly:
		return Plan{Action: "mine oak_log", Reasoning: "Early game; gathering wood"}
	default:
		return Plan{Action: "explore", Reasoning: "Exploring while the reasoning service is unavailable"}
	}
}

// holdPlan is the cheap action returned right after a failed reasoning call.
func holdPlan(reason string) Plan {
	return Plan{
		Action:    "wait",
		Reasoning: "Reasoning service unavailable: " + reason,
		Source:    SourceHold,
	}
}
