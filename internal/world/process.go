package world

import (
	"context"
	"fmt"

	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/logging"
)

// maxCascades bounds outcome chains within one tick. Damage → Death →
// Despawn + GainXP is three cascades; anything deeper than eight is dropped
// and logged.
const maxCascades = 8

// physicalMitigationK is the diminishing-returns armor coefficient.
const physicalMitigationK = 0.06

// heroBountyBase and heroBountyPerLevel price a hero kill.
const (
	heroBountyBase     = 100
	heroBountyPerLevel = 10
)

// ProcessOutcomes drains the outcome queue in FIFO order, single-threaded,
// at the end of each tick. It is the only site that creates or destroys
// entities and the only site that may observe an invariant violation.
func (w *World) ProcessOutcomes() error {
	ctx := context.Background()
	w.enqueueDueRespawns()

	processed := 0
	for cascade := 1; w.Outcomes.Len() > 0; cascade++ {
		if cascade > maxCascades {
			dropped := w.Outcomes.Len()
			w.Outcomes.Reset()
			w.publisher.Publish(ctx, logging.Event{
				Type:     logging.EventCascadeOverflow,
				Tick:     w.Clock.Tick,
				Severity: logging.SeverityWarn,
				Category: logging.CategorySystem,
				Payload:  map[string]any{"dropped": dropped},
			})
			if w.metrics != nil {
				w.metrics.RecordOutcomes(processed, dropped)
			}
			w.logger.Printf("tick %d: outcome cascade overflow, dropped %d records", w.Clock.Tick, dropped)
			return nil
		}
		// Records enqueued while applying belong to the next cascade.
		batch := w.Outcomes.Len()
		for i := 0; i < batch; i++ {
			o, ok := w.Outcomes.Pop()
			if !ok {
				break
			}
			if err := w.apply(ctx, o); err != nil {
				w.publisher.Publish(ctx, logging.Event{
					Type:     logging.EventInvariantBreach,
					Tick:     w.Clock.Tick,
					Severity: logging.SeverityError,
					Category: logging.CategorySystem,
					Payload:  map[string]any{"outcome": string(o.Kind), "error": err.Error()},
				})
				return err
			}
			processed++
		}
	}
	if w.metrics != nil {
		w.metrics.RecordOutcomes(processed, 0)
	}
	return nil
}

func (w *World) apply(ctx context.Context, o outcome.Outcome) error {
	switch o.Kind {
	case outcome.KindDamage:
		return w.applyDamage(ctx, o)
	case outcome.KindHeal:
		return w.applyHeal(ctx, o)
	case outcome.KindGainXP:
		return w.applyGainXP(ctx, o)
	case outcome.KindSpawn:
		return w.applySpawn(ctx, o)
	case outcome.KindDespawn:
		return w.applyDespawn(ctx, o)
	case outcome.KindDeath:
		return w.applyDeath(ctx, o)
	case outcome.KindProjectileFire:
		return w.applyProjectileFire(o)
	case outcome.KindCreepStop:
		w.applyCreepStop(o)
		return nil
	case outcome.KindMove:
		w.applyMove(o)
		return nil
	case outcome.KindAttributeModifier:
		w.applyAttributeModifier(o)
		return nil
	default:
		return fmt.Errorf("unknown outcome kind %q", o.Kind)
	}
}

// Mitigate applies the armor or magic-resist reduction to a raw amount.
func Mitigate(amount float64, damageType outcome.DamageType, stats *CombatStats) float64 {
	switch damageType {
	case outcome.DamagePhysical:
		mitigation := stats.Armor * physicalMitigationK / (1 + stats.Armor*physicalMitigationK)
		amount *= 1 - mitigation
	case outcome.DamageMagical:
		mitigation := stats.MagicResist / 100
		if mitigation < 0 {
			mitigation = 0
		}
		if mitigation >= 1 {
			mitigation = 0.99
		}
		amount *= 1 - mitigation
	case outcome.DamagePure:
		// unmitigated
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

func (w *World) applyDamage(ctx context.Context, o outcome.Outcome) error {
	if !w.Alive(o.Target) {
		return nil
	}
	stats := w.Combat.Mut(o.Target)
	if stats == nil {
		return nil
	}
	amount := o.Amount
	if !o.Mitigated {
		amount = Mitigate(amount, o.DamageType, stats)
	}
	if amount < 0 {
		amount = 0
	}
	stats.HP -= amount
	if stats.HP < 0 {
		stats.HP = 0
	}
	if err := checkPools(o.Target, stats); err != nil {
		return err
	}

	w.record(o, stats.HP)
	w.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventDamaged,
		Tick:     w.Clock.Tick,
		Actor:    w.EntityRef(o.Source),
		Targets:  []logging.EntityRef{w.EntityRef(o.Target)},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCombat,
		Payload:  map[string]any{"amount": amount, "type": string(o.DamageType), "hp": stats.HP},
	})

	if stats.HP <= 0 && !w.DeathMarks.Has(o.Target) {
		w.DeathMarks.Set(o.Target, DeathMark{Reason: "damage", Instigator: o.Source})
		w.Outcomes.Push(outcome.Outcome{
			Kind:   outcome.KindDeath,
			Pos:    o.Pos,
			Target: o.Target,
			Killer: o.Source,
		})
	}
	return nil
}

func (w *World) applyHeal(ctx context.Context, o outcome.Outcome) error {
	if !w.Alive(o.Target) {
		return nil
	}
	stats := w.Combat.Mut(o.Target)
	if stats == nil {
		return nil
	}
	missing := stats.MaxHP - stats.HP
	if missing <= 0 || o.Amount <= 0 {
		// Healing a full pool is idempotent: no state change, no cascade.
		return nil
	}
	amount := o.Amount
	if amount > missing {
		amount = missing
	}
	stats.HP += amount
	if err := checkPools(o.Target, stats); err != nil {
		return err
	}
	w.record(o, stats.HP)
	w.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventHealed,
		Tick:     w.Clock.Tick,
		Actor:    w.EntityRef(o.Source),
		Targets:  []logging.EntityRef{w.EntityRef(o.Target)},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCombat,
		Payload:  map[string]any{"amount": amount, "hp": stats.HP},
	})
	return nil
}

func (w *World) applyGainXP(ctx context.Context, o outcome.Outcome) error {
	if !w.Alive(o.Target) {
		return nil
	}
	hero := w.Heroes.Mut(o.Target)
	stats := w.Combat.Mut(o.Target)
	if hero == nil || stats == nil {
		return nil
	}
	levels := grantXP(hero, stats, w.Attacks.Mut(o.Target), o.XP)
	if err := checkPools(o.Target, stats); err != nil {
		return err
	}
	w.Applied = append(w.Applied, Applied{Outcome: o, HPAfter: stats.HP, Levels: levels, Tick: w.Clock.Tick})
	if levels > 0 {
		w.publisher.Publish(ctx, logging.Event{
			Type:     logging.EventLevelUp,
			Tick:     w.Clock.Tick,
			Actor:    w.EntityRef(o.Target),
			Severity: logging.SeverityInfo,
			Category: logging.CategoryGameplay,
			Payload:  map[string]any{"level": hero.Level},
		})
	}
	return nil
}

func (w *World) applySpawn(ctx context.Context, o outcome.Outcome) error {
	e, err := w.spawnFromArchetype(o)
	if err != nil {
		// A bad archetype reference is a config-validation escape; surface
		// it instead of limping on.
		return err
	}
	applied := o
	applied.Target = e
	w.record(applied, 0)
	w.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventSpawned,
		Tick:     w.Clock.Tick,
		Actor:    w.EntityRef(e),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  map[string]any{"archetype": o.Archetype, "x": o.Pos.X, "y": o.Pos.Y},
	})
	return nil
}

func (w *World) applyDespawn(ctx context.Context, o outcome.Outcome) error {
	if !w.Alive(o.Target) {
		return nil
	}
	ref := w.EntityRef(o.Target)
	w.despawn(o.Target)
	w.record(o, 0)
	w.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventDespawned,
		Tick:     w.Clock.Tick,
		Actor:    ref,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  map[string]any{"reason": string(o.Reason)},
	})
	return nil
}

func (w *World) applyDeath(ctx context.Context, o outcome.Outcome) error {
	if !w.Alive(o.Target) {
		return nil
	}

	if bounty := w.bountyOf(o.Target); bounty > 0 {
		if beneficiary, ok := w.bountyBeneficiary(o.Killer); ok {
			w.Outcomes.Push(outcome.Outcome{
				Kind:   outcome.KindGainXP,
				Target: beneficiary,
				Source: o.Target,
				XP:     bounty,
			})
		}
	}

	w.record(o, 0)
	w.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventDied,
		Tick:     w.Clock.Tick,
		Actor:    w.EntityRef(o.Target),
		Targets:  []logging.EntityRef{w.EntityRef(o.Killer)},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
	})

	if hero := w.Heroes.Mut(o.Target); hero != nil {
		if w.scheduleRespawn(o.Target, hero) {
			w.Outcomes.Push(outcome.Outcome{
				Kind:   outcome.KindDespawn,
				Target: o.Target,
				Reason: outcome.DespawnDeath,
			})
			return nil
		}
	}
	w.Outcomes.Push(outcome.Outcome{
		Kind:   outcome.KindDespawn,
		Target: o.Target,
		Reason: outcome.DespawnDeath,
	})
	return nil
}

func (w *World) applyProjectileFire(o outcome.Outcome) error {
	if !o.Target.IsNil() && !w.Alive(o.Target) {
		// Target died between emission and processing; nothing to fire at.
		return nil
	}
	e := w.alloc.Allocate()
	w.Positions.Set(e, Position{X: o.Pos.X, Y: o.Pos.Y})
	w.Velocities.Set(e, Velocity{})
	if faction, ok := w.Factions.Get(o.Source); ok {
		w.Factions.Set(e, faction)
	} else {
		w.Factions.Set(e, Faction{ID: FactionNeutral})
	}
	proj := Projectile{
		Origin:       Vec3{X: o.Pos.X, Y: o.Pos.Y},
		TargetEntity: o.Target,
		Speed:        o.Speed,
		Payload:      o.Projectile,
		Source:       o.Source,
		OnTargetLoss: TargetLossPolicy(o.OnTargetLoss),
	}
	if o.TargetPoint != nil {
		point := *o.TargetPoint
		proj.TargetPoint = &point
		proj.LastKnown = point
	} else if pos, ok := w.Positions.Get(o.Target); ok {
		proj.LastKnown = outcome.Vec2{X: pos.X, Y: pos.Y}
	}
	w.Projectiles.Set(e, proj)
	w.record(o, 0)
	return nil
}

func (w *World) applyCreepStop(o outcome.Outcome) {
	if !w.Alive(o.Target) {
		return
	}
	w.Stops.Set(o.Target, Stop{Remaining: o.Duration})
	w.record(o, 0)
}

func (w *World) applyMove(o outcome.Outcome) {
	if !w.Alive(o.Target) {
		return
	}
	if pos := w.Positions.Mut(o.Target); pos != nil {
		pos.X = o.Pos.X
		pos.Y = o.Pos.Y
		w.record(o, 0)
	}
}

func (w *World) applyAttributeModifier(o outcome.Outcome) {
	if !w.Alive(o.Target) {
		return
	}
	if o.Remove {
		w.Modifiers.RemoveKey(o.Target, o.ModifierKey)
	} else {
		w.Modifiers.Apply(o.Target, Modifier{
			Attribute: o.Attribute,
			Delta:     o.Delta,
			Remaining: o.Duration,
			Key:       o.ModifierKey,
			Timed:     o.Duration > 0,
		})
	}
	w.record(o, 0)
}

func (w *World) record(o outcome.Outcome, hpAfter float64) {
	w.Applied = append(w.Applied, Applied{Outcome: o, HPAfter: hpAfter, Tick: w.Clock.Tick})
}

// bountyOf prices a kill.
func (w *World) bountyOf(target ecs.Entity) int {
	if creep, ok := w.Creeps.Get(target); ok {
		return creep.Bounty
	}
	if hero, ok := w.Heroes.Get(target); ok {
		return heroBountyBase + heroBountyPerLevel*hero.Level
	}
	return 0
}

// bountyBeneficiary resolves a killer to the hero that earns the bounty:
// the killer itself, or the hero of the player owning it.
func (w *World) bountyBeneficiary(killer ecs.Entity) (ecs.Entity, bool) {
	if killer.IsNil() || !w.Alive(killer) {
		return ecs.Nil, false
	}
	if w.Heroes.Has(killer) {
		return killer, true
	}
	if faction, ok := w.Factions.Get(killer); ok && faction.Owner != "" {
		if hero, ok := w.players[faction.Owner]; ok && w.Alive(hero) {
			return hero, true
		}
	}
	return ecs.Nil, false
}

// scheduleRespawn queues a hero respawn when its archetype states a policy.
func (w *World) scheduleRespawn(e ecs.Entity, hero *Hero) bool {
	faction, ok := w.Factions.Get(e)
	if !ok || faction.Owner == "" {
		return false
	}
	archName := w.archetypeNameOfHero(faction.Owner)
	arch, found := w.Archetypes[archName]
	if !found || arch.Respawn == nil {
		return false
	}
	w.respawns = append(w.respawns, pendingRespawn{
		playerID:  faction.Owner,
		archetype: archName,
		level:     hero.Level,
		xp:        hero.XP,
		due:       w.Clock.Elapsed + arch.Respawn.Delay,
	})
	return true
}

// archetypeNameOfHero remembers which archetype a player's hero was stamped
// from. The binding is kept on the player registry at spawn time.
func (w *World) archetypeNameOfHero(playerID string) string {
	return w.playerArchetypes[playerID]
}

func (w *World) enqueueDueRespawns() {
	if len(w.respawns) == 0 {
		return
	}
	kept := w.respawns[:0]
	for _, pending := range w.respawns {
		if pending.due > w.Clock.Elapsed {
			kept = append(kept, pending)
			continue
		}
		arch := w.Archetypes[pending.archetype]
		if arch == nil || arch.Respawn == nil {
			continue
		}
		w.pendingLevel[pending.playerID] = pending
		w.Outcomes.Push(outcome.Outcome{
			Kind:        outcome.KindSpawn,
			Archetype:   pending.archetype,
			Pos:         arch.Respawn.At,
			Faction:     arch.Faction,
			OwnerPlayer: pending.playerID,
		})
	}
	w.respawns = kept
}

// checkPools is the invariant gate: pools must stay inside their maxima.
func checkPools(e ecs.Entity, stats *CombatStats) error {
	if stats.HP < 0 || stats.HP > stats.MaxHP {
		return fmt.Errorf("entity %s: hp %.2f outside [0, %.2f]", e, stats.HP, stats.MaxHP)
	}
	if stats.MP < 0 || (stats.MaxMP > 0 && stats.MP > stats.MaxMP) {
		return fmt.Errorf("entity %s: mp %.2f outside [0, %.2f]", e, stats.MP, stats.MaxMP)
	}
	return nil
}
