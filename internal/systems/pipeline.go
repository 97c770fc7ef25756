package systems

import (
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/internal/sim"
	"warlane/server/internal/vision"
	"warlane/server/internal/world"
)

// Nearby rebuilds the tick-local spatial index: one entry per positioned,
// factioned entity, Morton-keyed and radix-sorted. Read-only afterwards.
type Nearby struct{}

func (Nearby) Name() string { return "nearby" }

func (Nearby) Access() sim.Access {
	return sim.Access{
		Read:  []world.ComponentKey{world.KeyPosition, world.KeyFaction, world.KeyProjectile},
		Write: []world.ComponentKey{world.KeySpatialIndex},
	}
}

func (Nearby) Run(ctx *sim.Ctx) {
	ctx.World.RebuildIndex()
}

// VisionSystem recomputes each observer's visible region. The engine caches
// by fingerprint, so a stationary observer costs one hash.
type VisionSystem struct{}

func (VisionSystem) Name() string { return "vision" }

func (VisionSystem) Access() sim.Access {
	return sim.Access{
		Read:  []world.ComponentKey{world.KeyPosition},
		Write: []world.ComponentKey{world.KeyVision, world.KeyVisionResults},
	}
}

func (VisionSystem) Run(ctx *sim.Ctx) {
	w := ctx.World
	w.Visions.Each(func(e ecs.Entity, v *world.Vision) {
		pos, ok := w.Positions.Get(e)
		if !ok {
			return
		}
		observer := vision.Observer{
			Pos:       vision.Vec2{X: pos.X, Y: pos.Y},
			Height:    v.Height,
			Radius:    v.Radius,
			Precision: v.Precision,
		}
		fp := vision.Fingerprint(observer, w.VisionEngine.Epoch())
		if w.Metrics() != nil {
			w.Metrics().RecordVisionLookup(fp == v.Fingerprint)
		}
		result := w.VisionEngine.Compute(observer)
		v.Fingerprint = result.Fingerprint
		w.VisionResults[e] = result
	})
}

// structureDamageMultiplier scales damage landing on towers, applied before
// mitigation. Bases carry no Tower component and take unscaled damage.
const structureDamageMultiplier = 0.6

// Damage resolves the staged damage packets: pre-mitigation multipliers
// stack multiplicatively, then armor or magic resist reduce, then the final
// amount enters the outcome queue flagged as mitigated.
type Damage struct{}

func (Damage) Name() string { return "damage" }

func (Damage) Access() sim.Access {
	return sim.Access{
		Read:  []world.ComponentKey{world.KeyCombatStats, world.KeyTower, world.KeyFaction},
		Write: []world.ComponentKey{world.KeyDamageQueue},
	}
}

func (Damage) Run(ctx *sim.Ctx) {
	w := ctx.World
	packets := w.DamageQueue
	w.DamageQueue = w.DamageQueue[:0]
	for _, packet := range packets {
		if !w.Alive(packet.Target) {
			continue
		}
		stats, ok := w.Combat.Get(packet.Target)
		if !ok {
			continue
		}
		amount := packet.Amount
		if packet.Multiplier > 0 {
			amount *= packet.Multiplier
		}
		if w.Towers.Has(packet.Target) {
			amount *= structureDamageMultiplier
		}
		amount = world.Mitigate(amount, packet.Type, &stats)
		ctx.Out.Push(outcome.Outcome{
			Kind:       outcome.KindDamage,
			Pos:        packet.Pos,
			Target:     packet.Target,
			Source:     packet.Source,
			Amount:     amount,
			DamageType: packet.Type,
			Mitigated:  true,
		})
	}
}

// Death scans for zeroed pools, marks the dead exactly once, and emits the
// death outcome. The despawn itself happens in the outcome stage.
type Death struct{}

func (Death) Name() string { return "death" }

func (Death) Access() sim.Access {
	return sim.Access{
		Read:  []world.ComponentKey{world.KeyCombatStats},
		Write: []world.ComponentKey{world.KeyDeathMark},
	}
}

func (Death) Run(ctx *sim.Ctx) {
	w := ctx.World
	w.Combat.Each(func(e ecs.Entity, stats *world.CombatStats) {
		if stats.HP > 0 || w.DeathMarks.Has(e) {
			return
		}
		pos, _ := w.Positions.Get(e)
		w.DeathMarks.Set(e, world.DeathMark{Reason: "hp_depleted"})
		ctx.Out.Push(outcome.Outcome{
			Kind:   outcome.KindDeath,
			Pos:    outcome.Vec2{X: pos.X, Y: pos.Y},
			Target: e,
		})
	})
}

// Upkeep handles per-tick regeneration and timed component decay: hp/mp
// regen, stop timers, summon lifetimes.
type Upkeep struct{}

func (Upkeep) Name() string { return "upkeep" }

func (Upkeep) Access() sim.Access {
	return sim.Access{
		Read: []world.ComponentKey{world.KeyDeathMark},
		Write: []world.ComponentKey{
			world.KeyCombatStats, world.KeyStop, world.KeyLifetime,
		},
	}
}

func (Upkeep) Run(ctx *sim.Ctx) {
	w := ctx.World
	dt := w.Clock.Delta

	w.Combat.Each(func(e ecs.Entity, stats *world.CombatStats) {
		if w.DeathMarks.Has(e) || stats.HP <= 0 {
			return
		}
		if stats.HPRegen > 0 && stats.HP < stats.MaxHP {
			stats.HP += stats.HPRegen * dt
			if stats.HP > stats.MaxHP {
				stats.HP = stats.MaxHP
			}
		}
		if stats.MPRegen > 0 && stats.MP < stats.MaxMP {
			stats.MP += stats.MPRegen * dt
			if stats.MP > stats.MaxMP {
				stats.MP = stats.MaxMP
			}
		}
	})

	w.Stops.Each(func(_ ecs.Entity, stop *world.Stop) {
		if stop.Remaining > 0 {
			stop.Remaining -= dt
		}
	})

	w.Lifetimes.Each(func(e ecs.Entity, life *world.Lifetime) {
		life.Remaining -= dt
		if life.Remaining <= 0 {
			pos, _ := w.Positions.Get(e)
			ctx.Out.Push(outcome.Outcome{
				Kind:   outcome.KindDespawn,
				Target: e,
				Reason: outcome.DespawnExpired,
				Pos:    outcome.Vec2{X: pos.X, Y: pos.Y},
			})
		}
	})
}

// Wave walks the static spawn schedule and stages creep spawns when their
// relative times mature.
type Wave struct{}

func (Wave) Name() string { return "wave" }

func (Wave) Access() sim.Access {
	return sim.Access{
		Read:  nil,
		Write: []world.ComponentKey{world.KeyWaveState},
	}
}

func (Wave) Run(ctx *sim.Ctx) {
	w := ctx.World
	waves := w.Static.Waves
	state := &w.WaveState
	if state.Wave >= len(waves) {
		return
	}
	wave := waves[state.Wave]
	if w.Clock.Elapsed+timeEpsilon < wave.StartTime {
		return
	}
	if len(state.Cursors) != len(wave.Paths) {
		state.Cursors = make([]int, len(wave.Paths))
	}

	done := true
	for i, wavePath := range wave.Paths {
		cursor := state.Cursors[i]
		if cursor >= len(wavePath.Creeps) {
			continue
		}
		done = false
		spawn := wavePath.Creeps[cursor]
		if w.Clock.Elapsed+timeEpsilon < wave.StartTime+spawn.Time {
			continue
		}
		path := w.Static.Path(wavePath.Path)
		if path != nil {
			ctx.Out.Push(outcome.Outcome{
				Kind:      outcome.KindSpawn,
				Archetype: spawn.Creep,
				Pos:       path.Start(),
				Path:      wavePath.Path,
			})
		}
		state.Cursors[i]++
	}
	if done {
		state.Wave++
		state.Cursors = nil
	}
}

// RegisterAll wires the full system graph into the scheduler in the
// spec-mandated dependency order.
func RegisterAll(sched *sim.Scheduler) error {
	registrations := []struct {
		system sim.System
		after  []string
	}{
		{Player{}, nil},
		{Wave{}, []string{"player"}},
		{Skill{}, []string{"player"}},
		{Upkeep{}, []string{"skill"}},
		{Hero{}, []string{"skill"}},
		{Creep{}, []string{"skill"}},
		{Tower{}, []string{"skill"}},
		{Projectile{}, []string{"hero", "creep", "tower"}},
		{Nearby{}, []string{"hero", "creep", "tower"}},
		{VisionSystem{}, []string{"nearby"}},
		{Damage{}, []string{"skill", "hero", "creep", "tower", "projectile"}},
		{Death{}, []string{"damage"}},
	}
	for _, reg := range registrations {
		if err := sched.Register(reg.system, reg.after...); err != nil {
			return err
		}
	}
	return sched.Build()
}
