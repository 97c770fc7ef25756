package systems

import (
	"context"
	"math"

	"warlane/server/internal/ability"
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/internal/sim"
	"warlane/server/internal/spatial"
	"warlane/server/internal/world"
	"warlane/server/logging"
)

// Skill is the runtime half of the skill engine: cooldown bookkeeping,
// request validation, state mutation on success, and translation of the
// generated effects into outcomes and damage packets.
type Skill struct{}

func (Skill) Name() string { return "skill" }

func (Skill) Access() sim.Access {
	return sim.Access{
		Read: []world.ComponentKey{
			world.KeyPosition, world.KeyFaction, world.KeyAbilityBook,
			world.KeySpatialIndex,
		},
		Write: []world.ComponentKey{
			world.KeySkill, world.KeyCombatStats, world.KeySkillRequests,
		},
	}
}

func (s Skill) Run(ctx *sim.Ctx) {
	w := ctx.World
	dt := w.Clock.Delta

	// Cooldowns tick for every skill every tick, clamped at zero. Charged
	// abilities refill one charge per elapsed cooldown.
	w.Skills.Each(func(_ ecs.Entity, sk *world.Skill) {
		if sk.CooldownResidue <= 0 {
			return
		}
		sk.CooldownResidue -= dt
		if sk.CooldownResidue > 0 {
			return
		}
		sk.CooldownResidue = 0
		cfg := w.Abilities.Get(sk.AbilityID)
		if cfg == nil || cfg.MaxCharges <= 0 {
			return
		}
		if sk.Charges < cfg.MaxCharges {
			sk.Charges++
			if sk.Charges < cfg.MaxCharges {
				sk.CooldownResidue = cfg.Level(max(sk.Level, 1)).Cooldown
			}
		}
	})

	requests := w.SkillRequests
	w.SkillRequests = w.SkillRequests[:0]
	for _, req := range requests {
		s.resolve(ctx, req)
	}
}

func (s Skill) resolve(ctx *sim.Ctx, req ability.Request) {
	w := ctx.World
	cfg := w.Abilities.Get(req.AbilityID)
	_, skill := lookupSkill(w, req)
	if skill == nil {
		reject(w, req, ability.RejectUnknownAbility)
		return
	}

	stats := w.Combat.Mut(req.Caster)
	if stats == nil {
		reject(w, req, ability.RejectBadTarget)
		return
	}

	state := ability.CastState{
		Level:           skill.Level,
		CooldownResidue: skill.CooldownResidue,
		Charges:         skill.Charges,
		Toggled:         skill.Toggled,
		MP:              stats.MP,
	}
	if dist, ok := castDistance(w, req); ok {
		state.DistanceToTarget = dist
	}

	if reason := ability.Validate(cfg, req, state); reason != "" {
		reject(w, req, reason)
		return
	}

	level := cfg.Level(skill.Level)
	togglingOff := cfg.Behavior == ability.BehaviorToggle && skill.Toggled

	if !togglingOff {
		stats.MP -= level.Cost
		if cfg.MaxCharges > 0 {
			skill.Charges--
			if skill.CooldownResidue <= 0 {
				skill.CooldownResidue = level.Cooldown
			}
		} else {
			skill.CooldownResidue = level.Cooldown
		}
	}
	if cfg.Behavior == ability.BehaviorToggle {
		skill.Toggled = !skill.Toggled
	}

	req.Level = skill.Level
	effects := w.Generators.For(cfg.ID)(cfg, level, req, skill.Toggled || cfg.Behavior != ability.BehaviorToggle)
	s.translate(ctx, req, effects)

	w.Casts = append(w.Casts, world.SkillCast{
		PlayerID:  req.PlayerID,
		Slot:      req.Slot,
		AbilityID: req.AbilityID,
		Toggled:   skill.Toggled,
		Tick:      w.Clock.Tick,
	})
	w.Publisher().Publish(context.Background(), logging.Event{
		Type:     logging.EventSkillCast,
		Tick:     w.Clock.Tick,
		Actor:    w.EntityRef(req.Caster),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  map[string]any{"ability": req.AbilityID, "slot": req.Slot, "toggled": skill.Toggled},
	})
}

func lookupSkill(w *world.World, req ability.Request) (ecs.Entity, *world.Skill) {
	book, ok := w.Books.Get(req.Caster)
	if !ok {
		return ecs.Nil, nil
	}
	skillEnt, ok := book.Slots[req.Slot]
	if !ok {
		return ecs.Nil, nil
	}
	return skillEnt, w.Skills.Mut(skillEnt)
}

func castDistance(w *world.World, req ability.Request) (float64, bool) {
	casterPos, ok := w.Positions.Get(req.Caster)
	if !ok {
		return 0, false
	}
	if !req.TargetEntity.IsNil() {
		if targetPos, ok := w.Positions.Get(req.TargetEntity); ok {
			return math.Hypot(targetPos.X-casterPos.X, targetPos.Y-casterPos.Y), true
		}
		return 0, false
	}
	if req.TargetPoint != nil {
		return math.Hypot(req.TargetPoint.X-casterPos.X, req.TargetPoint.Y-casterPos.Y), true
	}
	return 0, false
}

func reject(w *world.World, req ability.Request, reason ability.RejectReason) {
	w.Rejections = append(w.Rejections, world.SkillRejection{
		PlayerID:  req.PlayerID,
		Slot:      req.Slot,
		AbilityID: req.AbilityID,
		Reason:    string(reason),
		Tick:      w.Clock.Tick,
	})
	w.Publisher().Publish(context.Background(), logging.Event{
		Type:     logging.EventSkillRejected,
		Tick:     w.Clock.Tick,
		Actor:    w.EntityRef(req.Caster),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  map[string]any{"ability": req.AbilityID, "reason": string(reason)},
	})
}

// translate maps each ability effect onto one outcome or damage packet,
// except AreaEffect (one packet per hostile in the radius) and Summon (one
// spawn per summoned unit).
func (Skill) translate(ctx *sim.Ctx, req ability.Request, effects []ability.Effect) {
	w := ctx.World
	casterPos, _ := w.Positions.Get(req.Caster)
	casterFaction, _ := w.Factions.Get(req.Caster)

	for _, effect := range effects {
		target := effect.Target
		if target.IsNil() {
			target = req.Caster
		}
		switch effect.Kind {
		case ability.EffectDamage:
			pos := outcome.Vec2{X: casterPos.X, Y: casterPos.Y}
			if targetPos, ok := w.Positions.Get(target); ok {
				pos = outcome.Vec2{X: targetPos.X, Y: targetPos.Y}
			}
			ctx.EmitDamage(world.DamagePacket{
				Target: target,
				Source: req.Caster,
				Amount: effect.Amount,
				Type:   effect.DamageType,
				Pos:    pos,
			})
		case ability.EffectHeal:
			ctx.Out.Push(outcome.Outcome{
				Kind:   outcome.KindHeal,
				Target: target,
				Source: req.Caster,
				Amount: effect.Amount,
			})
		case ability.EffectSummon:
			count := effect.Count
			if count < 1 {
				count = 1
			}
			for i := 0; i < count; i++ {
				offset := float64(i+1) * 40
				ctx.Out.Push(outcome.Outcome{
					Kind:        outcome.KindSpawn,
					Archetype:   effect.Archetype,
					Pos:         outcome.Vec2{X: casterPos.X + offset, Y: casterPos.Y},
					Faction:     casterFaction.ID.String(),
					OwnerPlayer: casterFaction.Owner,
					Owner:       req.Caster,
					Duration:    effect.Duration,
				})
			}
		case ability.EffectAreaEffect:
			point := effect.Point
			if point == nil {
				point = &outcome.Vec2{X: casterPos.X, Y: casterPos.Y}
			}
			w.Index.Query(point.X, point.Y, effect.Radius, func(entry spatial.Entry) {
				victim := entry.Entity
				if victim == req.Caster || !w.Alive(victim) {
					return
				}
				other, ok := w.Factions.Get(victim)
				if !ok || !casterFaction.Hostile(other) {
					return
				}
				if !w.Combat.Has(victim) {
					return
				}
				ctx.EmitDamage(world.DamagePacket{
					Target: victim,
					Source: req.Caster,
					Amount: effect.Amount,
					Type:   effect.DamageType,
					Pos:    outcome.Vec2{X: entry.X, Y: entry.Y},
				})
			})
		case ability.EffectStatusModifier, ability.EffectBuff:
			ctx.Out.Push(outcome.Outcome{
				Kind:        outcome.KindAttributeModifier,
				Target:      target,
				Source:      req.Caster,
				Attribute:   effect.Attribute,
				Delta:       effect.Delta,
				Duration:    effect.Duration,
				ModifierKey: effect.ModifierKey,
				Remove:      effect.Remove,
			})
		case ability.EffectProjectile:
			out := outcome.Outcome{
				Kind:   outcome.KindProjectileFire,
				Pos:    outcome.Vec2{X: casterPos.X, Y: casterPos.Y},
				Source: req.Caster,
				Speed:  effect.Speed,
				Projectile: outcome.Payload{
					Amount: effect.Amount,
					Type:   effect.DamageType,
				},
				OnTargetLoss: string(world.TargetLossExpire),
			}
			if effect.Point != nil {
				point := *effect.Point
				out.TargetPoint = &point
			} else {
				out.Target = effect.Target
			}
			ctx.Out.Push(out)
		case ability.EffectTeleport:
			if effect.Point != nil {
				ctx.Out.Push(outcome.Outcome{
					Kind:   outcome.KindMove,
					Target: target,
					Pos:    *effect.Point,
				})
			}
		}
	}
}
