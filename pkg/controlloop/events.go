package controlloop

import (
	"fmt"
	"strings"

	"github.com/harun/craftpilot/pkg/session"
	"github.com/harun/craftpilot/pkg/state"
)

// Ticks in a game day and the window counted as daytime.
const (
	ticksPerDay = 24000
	duskTick    = 13000
	dawnTick    = 23000
)

// bindEvents subscribes the store to session events and returns a function
// that removes every subscription.
func (l *Loop) bindEvents() func() {
	unsubs := []func(){
		l.session.On(session.EventSpawn, l.onSpawn),
		l.session.On(session.EventPosition, l.onPosition),
		l.session.On(session.EventHealth, l.onHealth),
		l.session.On(session.EventInventory, l.onInventory),
		l.session.On(session.EventTime, l.onTime),
		l.session.On(session.EventChat, l.onChat),
		l.session.On(session.EventDisconnect, func(p session.Payload) {
			reason, _ := p.String("reason")
			if reason == "" {
				reason = "connection closed"
			}
			l.fault(session.EventDisconnect, reason)
		}),
		l.session.On(session.EventError, func(p session.Payload) {
			msg, _ := p.String("message")
			if msg == "" {
				msg = "unknown session error"
			}
			l.fault(session.EventError, msg)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (l *Loop) onSpawn(p session.Payload) {
	u := state.Update{Spawned: state.Ptr(true)}
	if id, ok := p.Uint64("entity_id"); ok {
		u.EntityID = state.Ptr(id)
	}
	if pos, ok := positionFrom(p); ok {
		u.Position = &pos
	}
	l.store.Update(u)
	l.spawnOnce.Do(func() { close(l.spawned) })
	l.logger.Info().Msg("Spawned")
}

func (l *Loop) onPosition(p session.Payload) {
	pos, ok := positionFrom(p)
	if !ok {
		return
	}
	u := state.Update{Position: &pos}
	yaw, hasYaw := p.Float("yaw")
	pitch, hasPitch := p.Float("pitch")
	if hasYaw || hasPitch {
		rot := l.store.State().Rotation
		if hasYaw {
			rot.Yaw = yaw
		}
		if hasPitch {
			rot.Pitch = pitch
		}
		u.Rotation = &rot
	}
	l.store.Update(u)
}

func (l *Loop) onHealth(p session.Payload) {
	var u state.Update
	if h, ok := p.Int("health"); ok {
		u.Health = &h
	}
	if f, ok := p.Int("food"); ok {
		u.Hunger = &f
	}
	if u.Health == nil && u.Hunger == nil {
		return
	}
	l.store.Update(u)
}

func (l *Loop) onInventory(p session.Payload) {
	items, ok := p.Objects("items")
	if !ok {
		return
	}
	inv := make([]state.ItemStack, 0, len(items))
	for _, item := range items {
		name, _ := item.String("name")
		count, _ := item.Int("count")
		if name == "" || count <= 0 {
			continue
		}
		inv = append(inv, state.ItemStack{Name: name, Count: count})
	}
	l.store.Update(state.Update{Inventory: inv})
}

func (l *Loop) onTime(p session.Payload) {
	if day, ok := p.Bool("is_day"); ok {
		l.store.Update(state.Update{IsDay: &day})
		return
	}
	if tick, ok := p.Int("time_of_day"); ok {
		l.store.Update(state.Update{IsDay: state.Ptr(isDaytime(tick))})
	}
}

func (l *Loop) onChat(p session.Payload) {
	msg, _ := p.String("message")
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	if user, _ := p.String("username"); user != "" {
		msg = fmt.Sprintf("%s: %s", user, msg)
	}
	l.store.Update(state.Update{Chat: msg})
}

func positionFrom(p session.Payload) (state.Vec3, bool) {
	x, okX := p.Float("x")
	y, okY := p.Float("y")
	z, okZ := p.Float("z")
	if !okX || !okY || !okZ {
		return state.Vec3{}, false
	}
	return state.Vec3{X: x, Y: y, Z: z}, true
}

func isDaytime(tick int) bool {
	t := tick % ticksPerDay
	if t < 0 {
		t += ticksPerDay
	}
	return t < duskTick || t >= dawnTick
}
