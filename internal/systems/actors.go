package systems

import (
	"math"

	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/internal/sim"
	"warlane/server/internal/spatial"
	"warlane/server/internal/world"
)

// Hero integrates hero movement from the player-written velocity and runs
// the hero attack cadence.
type Hero struct{}

func (Hero) Name() string { return "hero" }

func (Hero) Access() sim.Access {
	return sim.Access{
		Read: []world.ComponentKey{
			world.KeyVelocity, world.KeyFaction, world.KeyCombatStats,
			world.KeyHero, world.KeySkill, world.KeyAbilityBook,
			world.KeySpatialIndex, world.KeyStop, world.KeyDeathMark,
			world.KeyProjectile,
		},
		Write: []world.ComponentKey{world.KeyPosition, world.KeyAttack},
	}
}

func (Hero) Run(ctx *sim.Ctx) {
	w := ctx.World
	dt := w.Clock.Delta
	w.Heroes.Each(func(e ecs.Entity, _ *world.Hero) {
		pos := w.Positions.Mut(e)
		if pos == nil || w.DeathMarks.Has(e) {
			return
		}
		if vel, ok := w.Velocities.Get(e); ok {
			if stop := w.Stops.Mut(e); stop == nil || stop.Remaining <= 0 {
				pos.X += vel.X * dt
				pos.Y += vel.Y * dt
			}
		}
		if atk := w.Attacks.Mut(e); atk != nil {
			faction, _ := w.Factions.Get(e)
			tickAttack(ctx, e, *pos, faction, atk, dt)
		}
	})
}

// Creep follows its waypoint path, engages hostiles in range, and on the
// terminal waypoint damages the enemy base exactly once and despawns.
type Creep struct{}

func (Creep) Name() string { return "creep" }

func (Creep) Access() sim.Access {
	return sim.Access{
		Read: []world.ComponentKey{
			world.KeyFaction, world.KeyCombatStats, world.KeySpatialIndex,
			world.KeyStop, world.KeyMobility, world.KeyDeathMark,
			world.KeyProjectile,
		},
		Write: []world.ComponentKey{
			world.KeyPosition, world.KeyVelocity, world.KeyAttack, world.KeyCreep,
		},
	}
}

func (Creep) Run(ctx *sim.Ctx) {
	w := ctx.World
	dt := w.Clock.Delta
	w.Creeps.Each(func(e ecs.Entity, creep *world.Creep) {
		if w.DeathMarks.Has(e) {
			return
		}
		pos := w.Positions.Mut(e)
		if pos == nil {
			return
		}
		faction, _ := w.Factions.Get(e)

		engaged := false
		if atk := w.Attacks.Mut(e); atk != nil {
			rangeUnits := w.EffectiveAttackRange(e, atk)
			if _, ok := acquireTarget(w, e, *pos, faction, rangeUnits); ok {
				engaged = true
			}
			tickAttack(ctx, e, *pos, faction, atk, dt)
		}
		if engaged {
			return
		}

		path := w.Static.Path(creep.PathID)
		if path == nil {
			return
		}
		waypoint, ok := path.Waypoint(creep.Waypoint)
		if !ok {
			return
		}
		dx := waypoint.X - pos.X
		dy := waypoint.Y - pos.Y
		dist := math.Hypot(dx, dy)
		if dist <= arrivalEpsilon {
			if path.Terminal(creep.Waypoint) {
				if base, ok := w.EnemyBase(faction.ID); ok {
					ctx.EmitDamage(world.DamagePacket{
						Target: base,
						Source: e,
						Amount: terminalBaseDamage,
						Type:   outcome.DamagePhysical,
						Pos:    waypoint,
					})
				}
				ctx.Out.Push(outcome.Outcome{
					Kind:   outcome.KindDespawn,
					Target: e,
					Reason: outcome.DespawnArrival,
					Pos:    waypoint,
				})
				return
			}
			creep.Waypoint++
			return
		}

		speed := w.EffectiveMoveSpeed(e)
		if speed <= 0 {
			return
		}
		step := speed * dt
		if step > dist {
			step = dist
		}
		pos.X += dx / dist * step
		pos.Y += dy / dist * step
	})
}

// terminalBaseDamage is the hit a creep lands on the enemy base when it
// walks the full lane.
const terminalBaseDamage = 10.0

// Tower runs tower attack cadence and refreshes the engaged-blocker count
// against the block capacity.
type Tower struct{}

func (Tower) Name() string { return "tower" }

func (Tower) Access() sim.Access {
	return sim.Access{
		Read: []world.ComponentKey{
			world.KeyPosition, world.KeyFaction, world.KeyCombatStats,
			world.KeySpatialIndex, world.KeyDeathMark, world.KeyProjectile,
		},
		Write: []world.ComponentKey{world.KeyAttack, world.KeyTower},
	}
}

func (Tower) Run(ctx *sim.Ctx) {
	w := ctx.World
	dt := w.Clock.Delta
	w.Towers.Each(func(e ecs.Entity, tower *world.Tower) {
		if w.DeathMarks.Has(e) {
			return
		}
		pos, ok := w.Positions.Get(e)
		if !ok {
			return
		}
		faction, _ := w.Factions.Get(e)
		atk := w.Attacks.Mut(e)
		if atk == nil {
			return
		}

		// Blockers: hostiles inside range, counted up to capacity. The count
		// is only recorded; creep movement and targeting do not read it.
		hostiles := 0
		rangeUnits := w.EffectiveAttackRange(e, atk)
		w.Index.Query(pos.X, pos.Y, rangeUnits, func(entry spatial.Entry) {
			if entry.Entity == e || !w.Alive(entry.Entity) {
				return
			}
			if other, ok := w.Factions.Get(entry.Entity); ok && faction.Hostile(other) && w.Combat.Has(entry.Entity) {
				hostiles++
			}
		})
		tower.Blockers = hostiles
		if tower.Capacity > 0 && tower.Blockers > tower.Capacity {
			tower.Blockers = tower.Capacity
		}

		tickAttack(ctx, e, world.Position{X: pos.X, Y: pos.Y, Z: pos.Z}, faction, atk, dt)
	})
}

// Projectile integrates in-flight projectiles: home on living targets, apply
// the archetype's target-loss policy otherwise, deliver the payload on
// arrival within one tick's travel, then despawn.
type Projectile struct{}

func (Projectile) Name() string { return "projectile" }

func (Projectile) Access() sim.Access {
	return sim.Access{
		Read: []world.ComponentKey{
			world.KeyFaction, world.KeyCombatStats, world.KeyDeathMark,
			world.KeySpatialIndex,
		},
		Write: []world.ComponentKey{
			world.KeyPosition, world.KeyProjectile,
		},
	}
}

func (Projectile) Run(ctx *sim.Ctx) {
	w := ctx.World
	dt := w.Clock.Delta
	w.Projectiles.Each(func(e ecs.Entity, proj *world.Projectile) {
		pos := w.Positions.Mut(e)
		if pos == nil {
			return
		}

		target := outcome.Vec2{}
		homing := !proj.TargetEntity.IsNil()
		if homing {
			if w.Alive(proj.TargetEntity) && !w.DeathMarks.Has(proj.TargetEntity) {
				if targetPos, ok := w.Positions.Get(proj.TargetEntity); ok {
					proj.LastKnown = outcome.Vec2{X: targetPos.X, Y: targetPos.Y}
				}
				target = proj.LastKnown
			} else {
				switch proj.OnTargetLoss {
				case world.TargetLossLastPoint:
					target = proj.LastKnown
					homing = false
					proj.TargetEntity = ecs.Nil
					proj.TargetPoint = &proj.LastKnown
				default: // expire
					ctx.Out.Push(outcome.Outcome{
						Kind:   outcome.KindDespawn,
						Target: e,
						Reason: outcome.DespawnExpired,
						Pos:    outcome.Vec2{X: pos.X, Y: pos.Y},
					})
					return
				}
			}
		} else if proj.TargetPoint != nil {
			target = *proj.TargetPoint
		} else {
			ctx.Out.Push(outcome.Outcome{
				Kind:   outcome.KindDespawn,
				Target: e,
				Reason: outcome.DespawnExpired,
			})
			return
		}

		dx := target.X - pos.X
		dy := target.Y - pos.Y
		dist := math.Hypot(dx, dy)
		travel := proj.Speed * dt

		// Arrival at exactly speed·ΔT applies the payload this tick.
		if dist <= travel {
			pos.X, pos.Y = target.X, target.Y
			deliverPayload(ctx, e, proj, target)
			return
		}
		pos.X += dx / dist * travel
		pos.Y += dy / dist * travel
	})
}

func deliverPayload(ctx *sim.Ctx, e ecs.Entity, proj *world.Projectile, at outcome.Vec2) {
	w := ctx.World
	victim := proj.TargetEntity
	if victim.IsNil() {
		// Point projectiles burst on a hostile near the impact point, chosen
		// like any attack target: lowest hp, then closest, then lowest id.
		if faction, ok := w.Factions.Get(proj.Source); ok {
			if found, ok := acquireTarget(w, proj.Source, world.Position{X: at.X, Y: at.Y}, faction, impactRadius); ok {
				victim = found
			}
		}
	}
	if !victim.IsNil() && w.Alive(victim) {
		if proj.Payload.Heal {
			ctx.Out.Push(outcome.Outcome{
				Kind:   outcome.KindHeal,
				Target: victim,
				Source: proj.Source,
				Amount: proj.Payload.Amount,
				Pos:    at,
			})
		} else {
			ctx.EmitDamage(world.DamagePacket{
				Target: victim,
				Source: proj.Source,
				Amount: proj.Payload.Amount,
				Type:   proj.Payload.Type,
				Pos:    at,
			})
		}
	}
	ctx.Out.Push(outcome.Outcome{
		Kind:   outcome.KindDespawn,
		Target: e,
		Reason: outcome.DespawnImpact,
		Pos:    at,
	})
}

// impactRadius bounds the point-projectile burst search.
const impactRadius = 100.0
