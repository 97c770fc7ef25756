// Package net wraps the simulation core with its transports: the message
// broker adapter, command intake, the per-client event egress, a spectator
// websocket gateway and the HTTP diagnostics surface. Adapters talk to the
// core exclusively through the command buffer and the per-tick journals;
// they never touch components.
package net

import (
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/internal/vision"
	"warlane/server/internal/world"
)

// Event is one wire event inside a tick batch.
type Event struct {
	Type   string  `json:"type"`
	Entity string  `json:"entity,omitempty"`
	Source string  `json:"source,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	HP     float64 `json:"hp,omitempty"`
	Level  int     `json:"level,omitempty"`
	Slot   string  `json:"slot,omitempty"`
	Reason string  `json:"reason,omitempty"`
	Name   string  `json:"name,omitempty"`
}

// VisionUpdate carries the observer's visible polygon and tagged shadows.
// The raster stays server-side; minimap consumers derive it from the
// polygon.
type VisionUpdate struct {
	Entity  string           `json:"entity"`
	Visible []vision.Vec2    `json:"visible"`
	Shadows []vision.Shadow  `json:"shadows"`
}

// Batch is the per-client event set for one tick.
type Batch struct {
	Tick   uint64        `json:"tick"`
	Events []Event       `json:"events"`
	Vision *VisionUpdate `json:"vision,omitempty"`
}

// BuildBatches converts the tick's applied outcomes into client batches:
// one filtered batch per subscribed player, plus the unfiltered spectator
// batch. A player sees an event when it happens inside their hero's visible
// region, names their hero as entity or source, or names the player itself
// (their own casts).
func BuildBatches(w *world.World, players []string) (map[string]Batch, Batch) {
	tick := w.Clock.Tick
	all := make([]Event, 0, len(w.Applied)+len(w.Casts))
	positions := make([]outcome.Vec2, 0, len(w.Applied)+len(w.Casts))

	for _, applied := range w.Applied {
		event, ok := wireEvent(applied)
		if !ok {
			continue
		}
		all = append(all, event)
		positions = append(positions, applied.Pos)
	}
	for _, cast := range w.Casts {
		all = append(all, Event{Type: "skill_cast", Entity: cast.PlayerID, Slot: cast.Slot, Name: cast.AbilityID})
		positions = append(positions, casterPos(w, cast.PlayerID))
	}
	// Moved events for every mobile entity, so clients track motion without
	// a separate reconciliation channel.
	w.Velocities.Each(func(e ecs.Entity, vel *world.Velocity) {
		if !w.Alive(e) || (vel.X == 0 && vel.Y == 0 && !w.Creeps.Has(e) && !w.Projectiles.Has(e)) {
			return
		}
		if pos, ok := w.Positions.Get(e); ok {
			all = append(all, Event{Type: "moved", Entity: e.String(), X: pos.X, Y: pos.Y})
			positions = append(positions, outcome.Vec2{X: pos.X, Y: pos.Y})
		}
	})

	spectator := Batch{Tick: tick, Events: all}

	batches := make(map[string]Batch, len(players))
	for _, playerID := range players {
		batch := Batch{Tick: tick}
		hero, ok := w.Player(playerID)
		var result *vision.Result
		if ok {
			result = w.VisionResults[hero]
		}
		for i, event := range all {
			if visibleTo(w, playerID, hero, result, event, positions[i]) {
				batch.Events = append(batch.Events, event)
			}
		}
		for _, rejection := range w.Rejections {
			if rejection.PlayerID == playerID {
				batch.Events = append(batch.Events, Event{
					Type:   "skill_rejected",
					Slot:   rejection.Slot,
					Name:   rejection.AbilityID,
					Reason: rejection.Reason,
				})
			}
		}
		if result != nil {
			batch.Vision = &VisionUpdate{
				Entity:  hero.String(),
				Visible: result.Visible,
				Shadows: result.Shadows,
			}
		}
		batches[playerID] = batch
	}
	return batches, spectator
}

func wireEvent(applied world.Applied) (Event, bool) {
	base := Event{
		Entity: applied.Target.String(),
		Source: applied.Source.String(),
		X:      applied.Pos.X,
		Y:      applied.Pos.Y,
	}
	if applied.Source.IsNil() {
		base.Source = ""
	}
	switch applied.Kind {
	case outcome.KindSpawn:
		base.Type = "spawned"
		base.Name = applied.Archetype
	case outcome.KindDespawn:
		base.Type = "despawned"
		base.Reason = string(applied.Reason)
	case outcome.KindDamage:
		base.Type = "damaged"
		base.Amount = applied.Amount
		base.HP = applied.HPAfter
	case outcome.KindHeal:
		base.Type = "healed"
		base.Amount = applied.Amount
		base.HP = applied.HPAfter
	case outcome.KindDeath:
		base.Type = "died"
		base.Source = applied.Killer.String()
		if applied.Killer.IsNil() {
			base.Source = ""
		}
	case outcome.KindGainXP:
		if applied.Levels <= 0 {
			return Event{}, false
		}
		base.Type = "level_up"
		base.Level = applied.Levels
	case outcome.KindMove:
		base.Type = "moved"
	default:
		return Event{}, false
	}
	return base, true
}

func casterPos(w *world.World, playerID string) outcome.Vec2 {
	if hero, ok := w.Player(playerID); ok {
		if pos, ok := w.Positions.Get(hero); ok {
			return outcome.Vec2{X: pos.X, Y: pos.Y}
		}
	}
	return outcome.Vec2{}
}

// visibleTo filters one event for one player: own events always pass,
// everything else passes the vision test at the event position.
func visibleTo(w *world.World, playerID string, hero ecs.Entity, result *vision.Result, event Event, pos outcome.Vec2) bool {
	if !hero.IsNil() {
		if event.Entity == hero.String() || event.Source == hero.String() {
			return true
		}
	}
	if event.Entity == playerID {
		return true
	}
	if result == nil {
		return false
	}
	return result.CanSee(vision.Vec2{X: pos.X, Y: pos.Y})
}
