package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/craftpilot/pkg/action"
	"github.com/harun/craftpilot/pkg/session"
	"github.com/harun/craftpilot/pkg/state"
)

// foodValues maps edible items to the hunger points they restore.
var foodValues = map[string]int{
	"golden_carrot":   6,
	"cooked_beef":     8,
	"cooked_porkchop": 8,
	"rabbit_stew":     10,
	"cooked_mutton":   6,
	"cooked_salmon":   6,
	"cooked_chicken":  6,
	"mushroom_stew":   6,
	"beetroot_soup":   6,
	"baked_potato":    5,
	"bread":           5,
	"cooked_cod":      5,
	"cooked_rabbit":   5,
	"pumpkin_pie":     8,
	"golden_apple":    4,
	"apple":           4,
	"carrot":          3,
	"beef":            3,
	"porkchop":        3,
	"rabbit":          3,
	"mutton":          2,
	"chicken":         2,
	"cod":             2,
	"salmon":          2,
	"melon_slice":     2,
	"sweet_berries":   2,
	"glow_berries":    2,
	"cookie":          2,
	"dried_kelp":      1,
	"potato":          1,
	"beetroot":        1,
	"tropical_fish":   1,
	"chorus_fruit":    4,
	"honey_bottle":    6,
	"suspicious_stew": 6,
}

// handleEat picks the requested food, or the most filling one carried, and
// applies its effect to the store without waiting for the server.
func (e *Executor) handleEat(ctx context.Context, p action.Parsed) (string, error) {
	ws := e.store.State()
	if ws.Hunger >= state.MaxStat {
		return "", failf("Not hungry")
	}

	food := strings.ToLower(p.Arg(0, ""))
	if food != "" {
		if _, edible := foodValues[food]; !edible {
			return "", failf("%s is not food", food)
		}
		if countItem(ws.Inventory, food) == 0 {
			return "", failf("No %s in inventory", food)
		}
	} else {
		food = bestFood(ws.Inventory)
		if food == "" {
			return "", failf("No food in inventory")
		}
	}

	if err := e.send(ctx, "equip", session.Payload{"item": food, "destination": "hand"}); err != nil {
		return "", err
	}
	if err := e.send(ctx, "consume", session.Payload{"item": food}); err != nil {
		return "", err
	}
	if err := e.pause(ctx, e.stepDelay); err != nil {
		return "", err
	}

	restored := foodValues[food]
	hunger := ws.Hunger + restored
	e.store.Update(state.Update{
		Hunger:    &hunger,
		Inventory: consume(e.store.State().Inventory, food, 1),
	})
	return fmt.Sprintf("Ate %s (+%d hunger)", food, restored), nil
}

// handleSleep asks the bridge to use a nearby bed. It only works at night.
func (e *Executor) handleSleep(ctx context.Context, _ action.Parsed) (string, error) {
	if e.store.State().IsDay {
		return "", failf("Can only sleep at night")
	}
	if err := e.send(ctx, "sleep", session.Payload{}); err != nil {
		return "", err
	}
	return "Went to sleep", nil
}

func bestFood(inv []state.ItemStack) string {
	best, bestValue := "", 0
	for _, item := range inv {
		if item.Count <= 0 {
			continue
		}
		name := strings.ToLower(item.Name)
		if v, ok := foodValues[name]; ok && v > bestValue {
			best, bestValue = name, v
		}
	}
	return best
}
