package decision

import (
	"fmt"
	"strings"

	"github.com/harun/craftpilot/pkg/action"
	"github.com/harun/craftpilot/pkg/state"
)

const ruleset = `You are an autonomous agent playing a block-based survival game.
You act one command at a time and see the result on the next turn.

Strategy by phase:
- early: collect wood (oak_log), craft a crafting table and wooden tools, find or build shelter before night.
- mid: mine stone and iron, craft iron tools and armor, keep a stock of food.
- late: mine diamonds, prepare for the nether, upgrade gear.
- endgame: stay prepared, protect your gear, avoid needless risk.

Rules:
- If health is 5 or below, stop fighting and wait or eat until it recovers.
- If hunger is 6 or below and you carry food, eat.
- At night, sleep if you can, otherwise build or stay close to shelter.
- Do not repeat an action that just failed twice in a row; try something else.
- Keep chat short and only reply when a player talks to you.`

const maxPromptPlans = 3

// BuildPrompt renders the decision prompt. Output depends only on its inputs.
func BuildPrompt(snap state.Snapshot, recent []Plan) string {
	var b strings.Builder

	b.WriteString(ruleset)
	b.WriteString("\n\nCurrent state:\n")
	fmt.Fprintf(&b, "- Position: %s\n", snap.Position)
	fmt.Fprintf(&b, "- Health: %s\n", snap.Health)
	fmt.Fprintf(&b, "- Hunger: %s\n", snap.Hunger)
	fmt.Fprintf(&b, "- Phase: %s\n", snap.Phase)
	fmt.Fprintf(&b, "- Time: %s\n", timeOfDay(snap.IsDay))
	fmt.Fprintf(&b, "- Inventory (%d items): %s\n", snap.InventoryCount, snap.Inventory)
	if !snap.CanSurvive {
		b.WriteString("- WARNING: health or hunger is critical\n")
	}
	if snap.Goal != "" {
		fmt.Fprintf(&b, "- Goal: %s\n", snap.Goal)
	}

	if len(snap.RecentChat) > 0 {
		b.WriteString("\nRecent chat:\n")
		for _, line := range snap.RecentChat {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	b.WriteString("\nRecent actions:\n")
	if len(snap.RecentActions) == 0 {
		b.WriteString("- none yet\n")
	}
	for _, line := range snap.RecentActions {
		fmt.Fprintf(&b, "- %s\n", line)
	}

	if len(recent) > maxPromptPlans {
		recent = recent[len(recent)-maxPromptPlans:]
	}
	if len(recent) > 0 {
		b.WriteString("\nYour recent plans:\n")
		for _, p := range recent {
			fmt.Fprintf(&b, "- %s (%s)\n", p.Action, p.Reasoning)
		}
	}

	b.WriteString("\nCommands:\n")
	for _, c := range action.Verbs {
		fmt.Fprintf(&b, "- %s\n", c.Usage())
	}

	b.WriteString("\nReply with one or two sentences of reasoning, then a final line:\n")
	b.WriteString("ACTION: <command>\n")
	b.WriteString("You may add PRIORITY: <1-5> and DURATION: <seconds> lines.\n")

	return b.String()
}

func timeOfDay(isDay bool) string {
	if isDay {
		return "day"
	}
	return "night"
}
