package executor

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/harun/craftpilot/pkg/action"
	"github.com/harun/craftpilot/pkg/session"
	"github.com/harun/craftpilot/pkg/state"
)

const (
	defaultMoveDistance = 5.0
	minExploreDistance  = 5
	maxExploreDistance  = 15
)

// handleMove walks or jumps in a straight line. Positions are predicted
// client-side and written to the store ahead of any server confirmation.
func (e *Executor) handleMove(ctx context.Context, p action.Parsed, jump bool) (string, error) {
	if len(p.Args) == 0 {
		return "", failf("Usage: %s", p.Command.Usage())
	}

	ws := e.store.State()
	dir, ok := action.ParseDirection(p.Args[0], ws.Rotation.Yaw)
	if !ok {
		return "", failf("Unknown direction: %s", p.Args[0])
	}

	distance := defaultMoveDistance
	if raw := p.Arg(1, ""); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return "", failf("Invalid distance: %s", raw)
		}
		distance = d
	}

	verb := "Moved"
	if jump {
		verb = "Jumped"
	}
	end, travelled, err := e.walk(ctx, dir, distance, jump)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %.1f blocks to %.1f, %.1f, %.1f", verb, dir.Name, travelled, end.X, end.Y, end.Z), nil
}

// handleExplore walks a random cardinal direction for a random distance.
func (e *Executor) handleExplore(ctx context.Context, _ action.Parsed) (string, error) {
	dirs := action.Cardinal()
	dir := dirs[e.intn(len(dirs))]
	distance := float64(minExploreDistance + e.intn(maxExploreDistance-minExploreDistance+1))

	end, travelled, err := e.walk(ctx, dir, distance, false)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Explored %s %.1f blocks to %.1f, %.1f, %.1f", dir.Name, travelled, end.X, end.Y, end.Z), nil
}

// walk interpolates the path into fixed-size steps, capped at maxSteps, and
// emits one position command per step.
func (e *Executor) walk(ctx context.Context, dir action.Direction, distance float64, jump bool) (state.Vec3, float64, error) {
	if distance > e.maxDistance {
		distance = e.maxDistance
	}
	steps := int(math.Ceil(distance / e.stepSize))
	if steps > e.maxSteps {
		steps = e.maxSteps
	}
	if steps < 1 {
		steps = 1
	}
	stepLen := distance / float64(steps)

	ws := e.store.State()
	pos := ws.Position
	if err := e.look(ctx, dir.Yaw, 0); err != nil {
		return pos, 0, err
	}

	for i := 0; i < steps; i++ {
		next := pos.Add(dir.DX*stepLen, 0, dir.DZ*stepLen)

		if jump {
			mid := pos.Add(dir.DX*stepLen/2, 1, dir.DZ*stepLen/2)
			if err := e.sendPosition(ctx, mid, false); err != nil {
				return pos, float64(i) * stepLen, err
			}
			if err := e.pause(ctx, e.stepDelay/2); err != nil {
				return pos, float64(i) * stepLen, err
			}
		}

		if err := e.sendPosition(ctx, next, true); err != nil {
			return pos, float64(i) * stepLen, err
		}
		pos = next
		if err := e.pause(ctx, e.stepDelay); err != nil {
			return pos, float64(i+1) * stepLen, err
		}
	}
	return pos, distance, nil
}

func (e *Executor) sendPosition(ctx context.Context, pos state.Vec3, onGround bool) error {
	err := e.send(ctx, "position", session.Payload{
		"x":         pos.X,
		"y":         pos.Y,
		"z":         pos.Z,
		"on_ground": onGround,
	})
	if err != nil {
		return err
	}
	e.store.Update(state.Update{Position: &pos})
	return nil
}
