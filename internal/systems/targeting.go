// Package systems holds the per-tick systems the scheduler drives. Each
// system declares its component footprint and communicates across system
// boundaries only through deferred outcome and damage buffers.
package systems

import (
	"math"

	"warlane/server/internal/ability"
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/internal/sim"
	"warlane/server/internal/spatial"
	"warlane/server/internal/world"
)

// arrivalEpsilon is the waypoint-reached distance for creeps.
const arrivalEpsilon = 10.0

// timeEpsilon absorbs the drift of accumulating fixed ΔT in floating point,
// so a cooldown or schedule maturing exactly on a tick boundary fires on
// that tick.
const timeEpsilon = 1e-9

// acquireTarget picks an attackable enemy in range. Tie-break order: lowest
// hp, then closest, then lowest entity id, so replays pick identically.
func acquireTarget(w *world.World, self ecs.Entity, pos world.Position, faction world.Faction, rangeUnits float64) (ecs.Entity, bool) {
	best := ecs.Nil
	bestHP := math.Inf(1)
	bestDist := math.Inf(1)

	w.Index.Query(pos.X, pos.Y, rangeUnits, func(entry spatial.Entry) {
		candidate := entry.Entity
		if candidate == self || !w.Alive(candidate) {
			return
		}
		if w.Projectiles.Has(candidate) || w.DeathMarks.Has(candidate) {
			return
		}
		other, ok := w.Factions.Get(candidate)
		if !ok || !faction.Hostile(other) {
			return
		}
		stats, ok := w.Combat.Get(candidate)
		if !ok || stats.HP <= 0 {
			return
		}
		dx := entry.X - pos.X
		dy := entry.Y - pos.Y
		dist := math.Hypot(dx, dy)
		switch {
		case stats.HP < bestHP:
		case stats.HP == bestHP && dist < bestDist:
		case stats.HP == bestHP && dist == bestDist && lessEntity(candidate, best):
		default:
			return
		}
		best = candidate
		bestHP = stats.HP
		bestDist = dist
	})
	return best, !best.IsNil()
}

func lessEntity(a, b ecs.Entity) bool {
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	return a.Generation < b.Generation
}

// tickAttack runs one entity's attack cadence: decrement the residue and, if
// ready with a target in range, deal melee damage or fire a projectile.
func tickAttack(ctx *sim.Ctx, self ecs.Entity, pos world.Position, faction world.Faction, atk *world.Attack, dt float64) {
	w := ctx.World
	if atk.CooldownResidue > 0 {
		atk.CooldownResidue -= dt
	}
	if atk.CooldownResidue > timeEpsilon {
		return
	}
	cadence := w.EffectiveCadence(self, atk)
	if cadence <= 0 {
		return
	}
	rangeUnits := w.EffectiveAttackRange(self, atk)
	target, ok := acquireTarget(w, self, pos, faction, rangeUnits)
	if !ok {
		// Stay ready; fire the moment a target walks into range.
		if atk.CooldownResidue < 0 {
			atk.CooldownResidue = 0
		}
		return
	}
	atk.CooldownResidue = 1 / cadence

	damage := w.EffectiveAttackDamage(self, atk)
	multiplier := attackProcMultiplier(w, self, target)
	targetPos, _ := w.Positions.Get(target)

	if atk.ProjectileSpeed <= 0 {
		ctx.EmitDamage(world.DamagePacket{
			Target:     target,
			Source:     self,
			Amount:     damage,
			Type:       outcome.DamagePhysical,
			Multiplier: multiplier,
			Pos:        outcome.Vec2{X: targetPos.X, Y: targetPos.Y},
		})
		return
	}

	policy := projectilePolicyFor(w, self)
	ctx.Out.Push(outcome.Outcome{
		Kind:   outcome.KindProjectileFire,
		Pos:    outcome.Vec2{X: pos.X, Y: pos.Y},
		Target: target,
		Source: self,
		Speed:  atk.ProjectileSpeed,
		Projectile: outcome.Payload{
			Amount: damage * multiplierOrOne(multiplier),
			Type:   outcome.DamagePhysical,
		},
		OnTargetLoss: string(policy),
	})
}

func multiplierOrOne(m float64) float64 {
	if m <= 0 {
		return 1
	}
	return m
}

// attackProcMultiplier rolls the owner's passive attack procs. Multipliers
// stack multiplicatively and apply before mitigation.
func attackProcMultiplier(w *world.World, attacker, target ecs.Entity) float64 {
	book, ok := w.Books.Get(attacker)
	if !ok {
		return 0
	}
	multiplier := 1.0
	procced := false
	for _, slot := range world.SlotOrder {
		skillEnt, ok := book.Slots[slot]
		if !ok {
			continue
		}
		skill, ok := w.Skills.Get(skillEnt)
		if !ok || skill.Level < 1 {
			continue
		}
		cfg := w.Abilities.Get(skill.AbilityID)
		if cfg == nil || cfg.Behavior != ability.BehaviorPassive {
			continue
		}
		level := cfg.Level(skill.Level)
		chance := level.Prop("proc_chance", 0)
		if chance <= 0 {
			continue
		}
		if w.RNG("combat").Float64() >= chance {
			continue
		}
		bonus := level.Prop("bonus", 0)
		if w.Creeps.Has(target) {
			bonus = level.Prop("bonus_vs_creeps", bonus)
		}
		multiplier *= 1 + bonus
		procced = true
	}
	if !procced {
		return 0
	}
	return multiplier
}

// projectilePolicyFor reads the homing target-loss policy from the
// attacker's archetype binding.
func projectilePolicyFor(w *world.World, attacker ecs.Entity) world.TargetLossPolicy {
	if arch := w.ArchetypeOf(attacker); arch != nil && arch.ProjectilePolicy != "" {
		return arch.ProjectilePolicy
	}
	return world.TargetLossExpire
}
