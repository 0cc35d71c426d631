package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harun/craftpilot/pkg/action"
	"github.com/harun/craftpilot/pkg/session"
	"github.com/harun/craftpilot/pkg/state"
)

const (
	defaultMineBlock    = "stone"
	defaultAttackTarget = "nearest"
	mineSwings          = 3
	attackSwings        = 3
	combatSwings        = 5
	minePitch           = 30.0
	combatHealthFloor   = 5
	maxChatLength       = 256
	defaultWait         = 3 * time.Second
	maxWait             = 20 * time.Second
	maxCraftCount       = 64
	maxBuildCount       = 16
)

// buildingBlocks are tried in order when build names no block.
var buildingBlocks = []string{"cobblestone", "dirt", "stone", "planks", "sand", "gravel"}

// handleMine faces the block in front and below, then runs a fixed
// dig/animate sequence. Nothing waits for a break confirmation.
func (e *Executor) handleMine(ctx context.Context, p action.Parsed) (string, error) {
	block := p.Arg(0, defaultMineBlock)
	yaw := e.store.State().Rotation.Yaw

	if err := e.look(ctx, yaw, minePitch); err != nil {
		return "", err
	}
	if err := e.send(ctx, "dig", session.Payload{"status": "start", "block": block}); err != nil {
		return "", err
	}
	for i := 0; i < mineSwings; i++ {
		if err := e.pause(ctx, e.stepDelay); err != nil {
			return "", err
		}
		if err := e.send(ctx, "animate", session.Payload{"hand": "main"}); err != nil {
			return "", err
		}
	}
	if err := e.send(ctx, "dig", session.Payload{"status": "finish", "block": block}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Mined %s", block), nil
}

func (e *Executor) handleAttack(ctx context.Context, p action.Parsed) (string, error) {
	target := p.Arg(0, defaultAttackTarget)
	if err := e.swing(ctx, target, attackSwings); err != nil {
		return "", err
	}
	return fmt.Sprintf("Attacked %s", target), nil
}

// handleCombat is a longer attack that refuses to start at low health.
func (e *Executor) handleCombat(ctx context.Context, p action.Parsed) (string, error) {
	target := p.Arg(0, defaultAttackTarget)
	if health := e.store.State().Health; health <= combatHealthFloor {
		return "", failf("Health too low for combat (%d/20)", health)
	}
	if err := e.swing(ctx, target, combatSwings); err != nil {
		return "", err
	}
	return fmt.Sprintf("Fought %s (%d swings)", target, combatSwings), nil
}

func (e *Executor) swing(ctx context.Context, target string, swings int) error {
	yaw := e.store.State().Rotation.Yaw
	if err := e.look(ctx, yaw, 0); err != nil {
		return err
	}
	for i := 0; i < swings; i++ {
		if err := e.send(ctx, "attack", session.Payload{"target": target}); err != nil {
			return err
		}
		if err := e.send(ctx, "animate", session.Payload{"hand": "main"}); err != nil {
			return err
		}
		if err := e.pause(ctx, e.stepDelay); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) handleChat(ctx context.Context, p action.Parsed) (string, error) {
	message := strings.TrimSpace(p.Rest(0))
	if message == "" {
		return "", failf("Nothing to say")
	}
	message = state.Truncate(message, maxChatLength)
	if err := e.send(ctx, "chat", session.Payload{"message": message}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Said: %s", message), nil
}

// handleWait idles without touching the session.
func (e *Executor) handleWait(ctx context.Context, p action.Parsed) (string, error) {
	d := defaultWait
	if raw := p.Arg(0, ""); raw != "" {
		secs, err := strconv.ParseFloat(strings.TrimSuffix(raw, "s"), 64)
		if err != nil || secs < 0 {
			return "", failf("Invalid wait: %s", raw)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d > maxWait {
		d = maxWait
	}
	if err := e.pause(ctx, d); err != nil {
		return "", err
	}
	return fmt.Sprintf("Waited %s", d), nil
}

// handleCraft forwards a craft request; recipe resolution happens on the
// bridge side.
func (e *Executor) handleCraft(ctx context.Context, p action.Parsed) (string, error) {
	item := p.Arg(0, "")
	if item == "" {
		return "", failf("Usage: %s", p.Command.Usage())
	}
	count, err := parseCount(p.Arg(1, ""), maxCraftCount)
	if err != nil {
		return "", err
	}
	if err := e.send(ctx, "craft", session.Payload{"item": item, "count": count}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Requested craft of %d x %s", count, item), nil
}

// handleBuild pillars up: jump, place the block below, land on it.
func (e *Executor) handleBuild(ctx context.Context, p action.Parsed) (string, error) {
	ws := e.store.State()

	block := p.Arg(0, "")
	if block == "" {
		block = pickBuildingBlock(ws.Inventory)
		if block == "" {
			return "", failf("No building blocks in inventory")
		}
	}
	available := countItem(ws.Inventory, block)
	if available == 0 {
		return "", failf("No %s in inventory", block)
	}
	count, err := parseCount(p.Arg(1, ""), maxBuildCount)
	if err != nil {
		return "", err
	}
	if count > available {
		count = available
	}

	if err := e.look(ctx, ws.Rotation.Yaw, 90); err != nil {
		return "", err
	}

	pos := ws.Position
	placed := 0
	for placed < count {
		if err = e.sendPosition(ctx, pos.Add(0, 1, 0), false); err != nil {
			break
		}
		if err = e.send(ctx, "place", session.Payload{"block": block, "x": pos.X, "y": pos.Y, "z": pos.Z}); err != nil {
			break
		}
		placed++
		pos = pos.Add(0, 1, 0)
		if err = e.sendPosition(ctx, pos, true); err != nil {
			break
		}
		if err = e.pause(ctx, e.stepDelay); err != nil {
			break
		}
	}

	if placed > 0 {
		e.store.Update(state.Update{Inventory: consume(e.store.State().Inventory, block, placed)})
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Built pillar of %d %s", placed, block), nil
}

func parseCount(raw string, limit int) (int, error) {
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, failf("Invalid count: %s", raw)
	}
	if n > limit {
		n = limit
	}
	return n, nil
}

func pickBuildingBlock(inv []state.ItemStack) string {
	for _, candidate := range buildingBlocks {
		for _, item := range inv {
			if item.Count > 0 && (item.Name == candidate || strings.HasSuffix(item.Name, "_"+candidate)) {
				return item.Name
			}
		}
	}
	return ""
}

func countItem(inv []state.ItemStack, name string) int {
	total := 0
	for _, item := range inv {
		if strings.EqualFold(item.Name, name) {
			total += item.Count
		}
	}
	return total
}

// consume returns a copy of inv with n items of name removed, dropping
// emptied stacks.
func consume(inv []state.ItemStack, name string, n int) []state.ItemStack {
	out := make([]state.ItemStack, 0, len(inv))
	for _, item := range inv {
		if n > 0 && strings.EqualFold(item.Name, name) {
			take := item.Count
			if take > n {
				take = n
			}
			item.Count -= take
			n -= take
		}
		if item.Count > 0 {
			out = append(out, item)
		}
	}
	return out
}
